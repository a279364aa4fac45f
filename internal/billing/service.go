package billing

import (
	"context"
	"fmt"

	"github.com/nao1215/bills/pkg/middleware"
	"github.com/shopspring/decimal"
)

// BillService は口座情報の参照処理を提供する。
// ハンドラは認証とロール判定を通過したリクエストでのみ呼び出す。
type BillService interface {
	GetBills(ctx context.Context, user *middleware.AuthenticatedUser, opts BillsPageOptions) (*BillsPage, error)
	GetTotalAmountMoney(ctx context.Context, user *middleware.AuthenticatedUser) (*TotalAmountMoney, error)
	GetTotalAccountBalance(ctx context.Context, user *middleware.AuthenticatedUser) (*TotalAccountBalance, error)
	GetTotalAccountBalanceHistory(ctx context.Context, user *middleware.AuthenticatedUser) (*TotalAccountBalanceHistory, error)
	SearchBills(ctx context.Context, accountBillNumber string, user *middleware.AuthenticatedUser) ([]BillSearchResult, error)
}

// Service はStoreを使ったBillServiceの実装。
// 金額は取引ごとに通貨換算してから集計し、出力時に小数2桁へ丸める。
type Service struct {
	store        *Store
	searchLimit  int
	historyLimit int
}

var _ BillService = (*Service)(nil)

// NewService は新しいServiceを生成する。
func NewService(store *Store, searchLimit, historyLimit int) *Service {
	return &Service{
		store:        store,
		searchLimit:  searchLimit,
		historyLimit: historyLimit,
	}
}

// GetBills はユーザーの口座一覧を1ページ分返す。各口座には口座通貨での残高を付ける。
func (s *Service) GetBills(ctx context.Context, user *middleware.AuthenticatedUser, opts BillsPageOptions) (*BillsPage, error) {
	total, err := s.store.CountBills(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	bills, err := s.store.ListBills(ctx, user.ID, opts.Order, opts.Size, opts.Offset())
	if err != nil {
		return nil, err
	}

	page := &BillsPage{
		Data: make([]BillItem, 0, len(bills)),
		Meta: newPageMeta(opts, total),
	}
	if len(bills) == 0 {
		return page, nil
	}

	transfers, err := s.store.ListTransfers(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	rates, err := s.rates(ctx)
	if err != nil {
		return nil, err
	}

	balances := make(map[string]decimal.Decimal, len(bills))
	currencies := make(map[string]string, len(bills))
	for _, b := range bills {
		balances[b.ID] = decimal.Zero
		currencies[b.ID] = b.CurrencyName
	}
	for _, t := range transfers {
		if cur, ok := currencies[t.RecipientBillID]; ok {
			amount, err := rates.convert(t.AmountMoney, t.CurrencyName, cur)
			if err != nil {
				return nil, err
			}
			balances[t.RecipientBillID] = balances[t.RecipientBillID].Add(amount)
		}
		if cur, ok := currencies[t.SenderBillID]; ok {
			amount, err := rates.convert(t.AmountMoney, t.CurrencyName, cur)
			if err != nil {
				return nil, err
			}
			balances[t.SenderBillID] = balances[t.SenderBillID].Sub(amount)
		}
	}

	for _, b := range bills {
		page.Data = append(page.Data, BillItem{
			ID:                b.ID,
			AccountBillNumber: b.AccountBillNumber,
			AmountMoney:       formatMoney(balances[b.ID]),
			CurrencyName:      b.CurrencyName,
			CreatedAt:         b.CreatedAt,
		})
	}
	return page, nil
}

// GetTotalAmountMoney は他ユーザーの口座から受け取った金額の合計を主通貨で返す。
// 自分の口座間の振替は含めない。
func (s *Service) GetTotalAmountMoney(ctx context.Context, user *middleware.AuthenticatedUser) (*TotalAmountMoney, error) {
	main, transfers, rates, err := s.load(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, t := range transfers {
		if t.RecipientUserID != user.ID || t.SenderUserID == user.ID {
			continue
		}
		amount, err := rates.convert(t.AmountMoney, t.CurrencyName, main)
		if err != nil {
			return nil, err
		}
		total = total.Add(amount)
	}

	return &TotalAmountMoney{AmountMoney: formatMoney(total), CurrencyName: main}, nil
}

// GetTotalAccountBalance は全口座の入金から出金を差し引いた残高を主通貨で返す。
func (s *Service) GetTotalAccountBalance(ctx context.Context, user *middleware.AuthenticatedUser) (*TotalAccountBalance, error) {
	main, transfers, rates, err := s.load(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	balance := decimal.Zero
	for _, t := range transfers {
		delta, err := rates.netChange(t, user.ID, main)
		if err != nil {
			return nil, err
		}
		balance = balance.Add(delta)
	}

	return &TotalAccountBalance{AccountBalance: formatMoney(balance), CurrencyName: main}, nil
}

// GetTotalAccountBalanceHistory は残高が変化した取引ごとの残高を古い順に返す。
// 件数が上限を超える場合は新しいものを残す。
func (s *Service) GetTotalAccountBalanceHistory(ctx context.Context, user *middleware.AuthenticatedUser) (*TotalAccountBalanceHistory, error) {
	main, transfers, rates, err := s.load(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	history := make([]BalancePoint, 0, len(transfers))
	balance := decimal.Zero
	for _, t := range transfers {
		delta, err := rates.netChange(t, user.ID, main)
		if err != nil {
			return nil, err
		}
		if delta.IsZero() {
			continue
		}
		balance = balance.Add(delta)
		history = append(history, BalancePoint{Timestamp: t.CreatedAt, Balance: formatMoney(balance)})
	}
	if s.historyLimit > 0 && len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}

	return &TotalAccountBalanceHistory{AccountBalanceHistory: history, CurrencyName: main}, nil
}

// SearchBills は口座番号が前方一致する他ユーザーの口座を返す。該当なしは空スライス。
func (s *Service) SearchBills(ctx context.Context, accountBillNumber string, user *middleware.AuthenticatedUser) ([]BillSearchResult, error) {
	return s.store.SearchBills(ctx, accountBillNumber, user.ID, s.searchLimit)
}

// load は集計に必要な主通貨・取引・為替レートをまとめて取得する。
func (s *Service) load(ctx context.Context, userID string) (string, []Transfer, rateTable, error) {
	main, err := s.store.MainCurrency(ctx, userID)
	if err != nil {
		return "", nil, nil, err
	}
	transfers, err := s.store.ListTransfers(ctx, userID)
	if err != nil {
		return "", nil, nil, err
	}
	rates, err := s.rates(ctx)
	if err != nil {
		return "", nil, nil, err
	}
	return main, transfers, rates, nil
}

func (s *Service) rates(ctx context.Context) (rateTable, error) {
	currencies, err := s.store.ListCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	rates := make(rateTable, len(currencies))
	for _, c := range currencies {
		rates[c.Name] = c.ExchangeRate
	}
	return rates, nil
}

// rateTable は通貨名から基軸通貨1単位あたりのレートへの対応。
type rateTable map[string]decimal.Decimal

// convert はamountをfromからtoへ換算する。
func (r rateTable) convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	fromRate, ok := r[from]
	if !ok || !fromRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("通貨 %s の為替レートが不正です", from)
	}
	toRate, ok := r[to]
	if !ok || !toRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("通貨 %s の為替レートが不正です", to)
	}
	return amount.Div(fromRate).Mul(toRate), nil
}

// netChange は取引によるユーザー残高の増減をcurrencyで返す。
// 自分の口座間の振替は同額の入出金となり0になる。
func (r rateTable) netChange(t Transfer, userID, currency string) (decimal.Decimal, error) {
	amount, err := r.convert(t.AmountMoney, t.CurrencyName, currency)
	if err != nil {
		return decimal.Zero, err
	}
	delta := decimal.Zero
	if t.RecipientUserID == userID {
		delta = delta.Add(amount)
	}
	if t.SenderUserID == userID {
		delta = delta.Sub(amount)
	}
	return delta, nil
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
