package billing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

// newMockStore はsqlmockを使ったStoreを作成する。
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmockの作成に失敗: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewStore(db), mock
}

func TestStore_DatabaseErrors(t *testing.T) {
	t.Parallel()

	errDB := errors.New("database is locked")

	t.Run("CountBillsはDBエラーをラップして返すこと", func(t *testing.T) {
		t.Parallel()

		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bills`).WithArgs(aliceID).WillReturnError(errDB)

		_, err := store.CountBills(context.Background(), aliceID)
		if !errors.Is(err, errDB) {
			t.Errorf("err = %v, want %v", err, errDB)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("期待したクエリが実行されていない: %v", err)
		}
	})

	t.Run("ListBillsは不正な作成日時でエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		store, mock := newMockStore(t)
		rows := sqlmock.NewRows([]string{"id", "user_id", "account_bill_number", "currency_name", "created_at"}).
			AddRow(billA1, aliceID, numberA1, "PLN", "yesterday")
		mock.ExpectQuery(`FROM bills`).WillReturnRows(rows)

		_, err := store.ListBills(context.Background(), aliceID, OrderAsc, 10, 0)
		if err == nil || !strings.Contains(err.Error(), billA1) {
			t.Errorf("err = %v, want error mentioning %s", err, billA1)
		}
	})

	t.Run("ListBillsは降順指定でDESCのクエリを発行すること", func(t *testing.T) {
		t.Parallel()

		store, mock := newMockStore(t)
		rows := sqlmock.NewRows([]string{"id", "user_id", "account_bill_number", "currency_name", "created_at"})
		mock.ExpectQuery(`ORDER BY created_at DESC, id DESC`).WithArgs(aliceID, 5, 10).WillReturnRows(rows)

		bills, err := store.ListBills(context.Background(), aliceID, OrderDesc, 5, 10)
		if err != nil {
			t.Fatalf("ListBills()でエラーが発生: %v", err)
		}
		if len(bills) != 0 {
			t.Errorf("件数 = %d, want 0", len(bills))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("期待したクエリが実行されていない: %v", err)
		}
	})

	t.Run("ListTransfersは行の読み込みエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		store, mock := newMockStore(t)
		rows := sqlmock.NewRows([]string{"id", "sender_bill_id", "sender_user_id", "recipient_bill_id",
			"recipient_user_id", "amount_money", "currency_name", "created_at"}).
			AddRow("tx1", billB1, bobID, billA1, aliceID, "100", "PLN", formatTime(baseTime)).
			RowError(0, errDB)
		mock.ExpectQuery(`FROM transactions t`).WithArgs(TransactionAuthorized, aliceID, aliceID).WillReturnRows(rows)

		if _, err := store.ListTransfers(context.Background(), aliceID); !errors.Is(err, errDB) {
			t.Errorf("err = %v, want %v", err, errDB)
		}
	})

	t.Run("MainCurrencyは口座が無い場合に基軸通貨を問い合わせること", func(t *testing.T) {
		t.Parallel()

		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT currency_name FROM bills`).WithArgs(carolID).
			WillReturnRows(sqlmock.NewRows([]string{"currency_name"}))
		mock.ExpectQuery(`WHERE is_base = 1`).
			WillReturnRows(sqlmock.NewRows([]string{"name", "exchange_rate", "is_base"}).AddRow("PLN", "1", true))

		got, err := store.MainCurrency(context.Background(), carolID)
		if err != nil {
			t.Fatalf("MainCurrency()でエラーが発生: %v", err)
		}
		if got != "PLN" {
			t.Errorf("MainCurrency() = %q, want PLN", got)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("期待したクエリが実行されていない: %v", err)
		}
	})

	t.Run("UpdateExchangeRatesは途中で失敗した場合にロールバックすること", func(t *testing.T) {
		t.Parallel()

		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE currencies SET exchange_rate`).WillReturnError(errDB)
		mock.ExpectRollback()

		_, err := store.UpdateExchangeRates(context.Background(),
			map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.25")}, baseTime)
		if !errors.Is(err, errDB) {
			t.Errorf("err = %v, want %v", err, errDB)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("ロールバックされていない: %v", err)
		}
	})

	t.Run("CreateUserWithBillは制約以外のエラーをそのまま返すこと", func(t *testing.T) {
		t.Parallel()

		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO bills`).WillReturnError(errDB)
		mock.ExpectRollback()

		err := store.CreateUserWithBill(context.Background(),
			User{ID: "u1", Email: "u1@example.com", Role: RoleUser, CreatedAt: baseTime},
			Bill{ID: "b1", UserID: "u1", AccountBillNumber: "1", CurrencyName: "PLN", CreatedAt: baseTime})
		if !errors.Is(err, errDB) {
			t.Errorf("err = %v, want %v", err, errDB)
		}
		if errors.Is(err, errAccountNumberTaken) {
			t.Error("制約違反として扱われるべきではない")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("期待したクエリが実行されていない: %v", err)
		}
	})

	t.Run("Pingはエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("sqlmockの作成に失敗: %v", err)
		}
		defer db.Close()
		mock.ExpectPing().WillReturnError(errDB)

		if err := NewStore(db).Ping(context.Background()); !errors.Is(err, errDB) {
			t.Errorf("err = %v, want %v", err, errDB)
		}
	})
}
