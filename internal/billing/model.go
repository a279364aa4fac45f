package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ロール
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// 取引の状態。残高計算には TransactionAuthorized のみを使う。
const (
	TransactionPending    = "pending"
	TransactionAuthorized = "authorized"
	TransactionRejected   = "rejected"
)

// timeLayout はDBに保存する日時の形式。固定長のため文字列比較で順序が保たれる。
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// User は登録済みユーザー。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         string
	CreatedAt    time.Time
}

// Currency は通貨と基軸通貨1単位あたりの為替レート。
type Currency struct {
	Name         string
	ExchangeRate decimal.Decimal
	IsBase       bool
}

// Bill はユーザーが保有する口座。
type Bill struct {
	ID                string
	UserID            string
	AccountBillNumber string
	CurrencyName      string
	CreatedAt         time.Time
}

// Transfer は承認済み取引を送金元・送金先の所有者とともに表したもの。
type Transfer struct {
	ID              string
	SenderBillID    string
	SenderUserID    string
	RecipientBillID string
	RecipientUserID string
	AmountMoney     decimal.Decimal
	CurrencyName    string
	CreatedAt       time.Time
}

// BillSearchResult は口座検索で見つかった他ユーザーの口座。残高は含まない。
type BillSearchResult struct {
	ID                string
	AccountBillNumber string
	CurrencyName      string
	OwnerFirstName    string
	OwnerLastName     string
}
