// 口座参照サービスのエントリポイント。
// 認証済みユーザーの口座一覧・残高・残高推移・口座検索を提供する。
// SIGINT/SIGTERMを受け取るとグレースフルシャットダウンする。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/bills/internal/billing"
	"github.com/nao1215/bills/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "口座参照サービスの実行に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := billing.LoadConfig()
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("ロガーの初期化に失敗: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := billing.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	return serve(ctx, server, cfg.ShutdownTimeout, logger)
}

// lifecycle は起動と停止を持つサーバー。
type lifecycle interface {
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// serve はサーバーを起動し、ctxのキャンセルまたは起動エラーで停止する。
// どちらの場合もShutdownを呼び、起動エラーと停止エラーをまとめて返す。
func serve(ctx context.Context, server lifecycle, timeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("サーバーが異常終了しました", zap.Error(runErr))
		}
	case <-ctx.Done():
		logger.Info("シャットダウンを開始します")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("シャットダウンに失敗しました", zap.Error(err))
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("口座参照サービスを停止しました")
	return nil
}
