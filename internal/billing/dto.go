package billing

import "time"

// BillItem は口座一覧の1件。AmountMoney は口座通貨での残高。
type BillItem struct {
	ID                string    `json:"id"`
	AccountBillNumber string    `json:"accountBillNumber"`
	AmountMoney       string    `json:"amountMoney"`
	CurrencyName      string    `json:"currencyName"`
	CreatedAt         time.Time `json:"createdAt"`
}

// PageMeta はページングのメタ情報。
type PageMeta struct {
	Page            int  `json:"page"`
	Size            int  `json:"size"`
	ItemCount       int  `json:"itemCount"`
	PageCount       int  `json:"pageCount"`
	HasPreviousPage bool `json:"hasPreviousPage"`
	HasNextPage     bool `json:"hasNextPage"`
}

// newPageMeta は総件数とページング条件からメタ情報を組み立てる。
func newPageMeta(opts BillsPageOptions, itemCount int) PageMeta {
	pageCount := 0
	if opts.Size > 0 {
		pageCount = (itemCount + opts.Size - 1) / opts.Size
	}
	return PageMeta{
		Page:            opts.Page,
		Size:            opts.Size,
		ItemCount:       itemCount,
		PageCount:       pageCount,
		HasPreviousPage: opts.Page > 1,
		HasNextPage:     opts.Page < pageCount,
	}
}

// BillsPage は口座一覧の1ページ分。
type BillsPage struct {
	Data []BillItem `json:"data"`
	Meta PageMeta   `json:"meta"`
}

// TotalAmountMoney は他ユーザーから受け取った金額の合計。
type TotalAmountMoney struct {
	AmountMoney  string `json:"amountMoney"`
	CurrencyName string `json:"currencyName"`
}

// TotalAccountBalance は全口座の残高合計。
type TotalAccountBalance struct {
	AccountBalance string `json:"accountBalance"`
	CurrencyName   string `json:"currencyName"`
}

// BalancePoint は取引直後の残高。
type BalancePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   string    `json:"balance"`
}

// TotalAccountBalanceHistory は残高の推移。古い順に並ぶ。
type TotalAccountBalanceHistory struct {
	AccountBalanceHistory []BalancePoint `json:"accountBalanceHistory"`
	CurrencyName          string         `json:"currencyName"`
}

// searchBillOwner は検索結果に含める口座所有者の表示名。
type searchBillOwner struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// searchBillResponse は口座検索結果の1件。残高は含めない。
type searchBillResponse struct {
	ID                string          `json:"id"`
	AccountBillNumber string          `json:"accountBillNumber"`
	CurrencyName      string          `json:"currencyName"`
	User              searchBillOwner `json:"user"`
}

// SearchBillsPayload は口座検索のレスポンス。該当なしの場合も空配列を返す。
type SearchBillsPayload struct {
	Bills []searchBillResponse `json:"bills"`
}

// toSearchBillResponses は検索結果をレスポンス形式に変換する。
func toSearchBillResponses(results []BillSearchResult) []searchBillResponse {
	responses := make([]searchBillResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, searchBillResponse{
			ID:                r.ID,
			AccountBillNumber: r.AccountBillNumber,
			CurrencyName:      r.CurrencyName,
			User: searchBillOwner{
				FirstName: r.OwnerFirstName,
				LastName:  r.OwnerLastName,
			},
		})
	}
	return responses
}
