package billing

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/bills/pkg/httpclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateSyncer は外部の為替レートAPIを定期的に取得し、通貨テーブルを更新するバックグラウンドプロセス。
type RateSyncer struct {
	// store は為替レートの更新先。
	store *Store
	// client は為替レートAPIとの通信用HTTPクライアント。
	client *httpclient.Client
	// interval は同期間隔。
	interval time.Duration
	// logger は構造化ロガー。
	logger *zap.Logger
	// now は現在時刻を返す関数。
	now func() time.Time

	// mu はlastSyncedへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// lastSynced は最後に同期が成功した時刻。
	lastSynced time.Time

	// cancel はバックグラウンドゴルーチンを停止するためのキャンセル関数。
	cancel context.CancelFunc
	// done はバックグラウンドゴルーチンの終了を通知する。
	done chan struct{}
}

// NewRateSyncer は新しいRateSyncerを生成する。
func NewRateSyncer(store *Store, client *httpclient.Client, interval time.Duration, logger *zap.Logger) *RateSyncer {
	return &RateSyncer{
		store:    store,
		client:   client,
		interval: interval,
		logger:   logger.Named("ratesync"),
		now:      time.Now,
	}
}

// ratesResponse は為替レートAPIのレスポンス。rates は基軸通貨1単位あたりのレート。
type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Start はバックグラウンドで同期を開始する。起動直後に1回同期し、以降はinterval毎に同期する。
func (r *RateSyncer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		r.logger.Info("為替レートの同期を開始します", zap.Duration("interval", r.interval))

		r.syncAndLog(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("為替レートの同期を停止しました")
				return
			case <-ticker.C:
				r.syncAndLog(ctx)
			}
		}
	}()
}

// Stop はバックグラウンドの同期を停止し、終了を待つ。
func (r *RateSyncer) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// LastSynced は最後に同期が成功した時刻を返す。未同期ならゼロ値。
func (r *RateSyncer) LastSynced() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSynced
}

// syncAndLog は同期ごとにIDを振り、為替レートAPIへのリクエストとログに付与する。
func (r *RateSyncer) syncAndLog(ctx context.Context) {
	syncID := uuid.NewString()
	logger := r.logger.With(zap.String("sync_id", syncID))

	updated, err := r.Sync(httpclient.WithRequestID(ctx, syncID))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("為替レートの同期に失敗しました", zap.Error(err))
		return
	}
	logger.Info("為替レートを同期しました", zap.Int("updated", updated))
}

// Sync は為替レートを1回取得して通貨テーブルに反映し、更新件数を返す。
// 未登録の通貨と0以下のレートは無視する。
func (r *RateSyncer) Sync(ctx context.Context) (int, error) {
	base, err := r.store.BaseCurrency(ctx)
	if err != nil {
		return 0, err
	}

	var resp ratesResponse
	if err := r.client.GetJSON(ctx, "/latest", url.Values{"base": {base.Name}}, &resp); err != nil {
		return 0, fmt.Errorf("為替レートの取得に失敗: %w", err)
	}
	if !strings.EqualFold(resp.Base, base.Name) {
		return 0, fmt.Errorf("基軸通貨が一致しません: got=%s, want=%s", resp.Base, base.Name)
	}

	rates := make(map[string]decimal.Decimal, len(resp.Rates))
	for name, rate := range resp.Rates {
		if !rate.IsPositive() {
			continue
		}
		rates[strings.ToUpper(name)] = rate
	}

	updated, err := r.store.UpdateExchangeRates(ctx, rates, r.now())
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.lastSynced = r.now()
	r.mu.Unlock()
	return updated, nil
}
