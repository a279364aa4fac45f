package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// errEmailTaken はメールアドレスが既に登録済みであることを示す。
	errEmailTaken = errors.New("email already registered")
	// errAccountNumberTaken は口座番号が既に使われていることを示す。
	errAccountNumberTaken = errors.New("account bill number already exists")
	// errUserNotFound はユーザーが存在しないことを示す。
	errUserNotFound = errors.New("user not found")
	// errNoBaseCurrency は基軸通貨が未登録であることを示す。
	errNoBaseCurrency = errors.New("base currency is not configured")
)

// Store はSQLiteに対する口座・取引・通貨の読み書きを行う。
type Store struct {
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CountBills はユーザーが保有する口座数を返す。
func (s *Store) CountBills(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bills WHERE user_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("口座数の取得に失敗: %w", err)
	}
	return n, nil
}

// ListBills はユーザーの口座を作成日時順に1ページ分返す。
func (s *Store) ListBills(ctx context.Context, userID string, order Order, limit, offset int) ([]Bill, error) {
	query := `
		SELECT id, user_id, account_bill_number, currency_name, created_at
		FROM bills
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`
	if order == OrderDesc {
		query = strings.Replace(query, "created_at ASC, id ASC", "created_at DESC, id DESC", 1)
	}

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("口座一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	bills := make([]Bill, 0, limit)
	for rows.Next() {
		var (
			b         Bill
			createdAt string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.AccountBillNumber, &b.CurrencyName, &createdAt); err != nil {
			return nil, fmt.Errorf("口座の読み込みに失敗: %w", err)
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("口座の作成日時が不正です (id=%s): %w", b.ID, err)
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// ListTransfers はユーザーの口座が送金元または送金先になっている承認済み取引を
// 古い順に返す。
func (s *Store) ListTransfers(ctx context.Context, userID string) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.sender_bill_id, sb.user_id, t.recipient_bill_id, rb.user_id,
		       t.amount_money, t.currency_name, t.created_at
		FROM transactions t
		JOIN bills sb ON sb.id = t.sender_bill_id
		JOIN bills rb ON rb.id = t.recipient_bill_id
		WHERE t.status = ? AND (sb.user_id = ? OR rb.user_id = ?)
		ORDER BY t.created_at ASC, t.id ASC`,
		TransactionAuthorized, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("取引一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transfers []Transfer
	for rows.Next() {
		var (
			t         Transfer
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.SenderBillID, &t.SenderUserID, &t.RecipientBillID, &t.RecipientUserID,
			&t.AmountMoney, &t.CurrencyName, &createdAt); err != nil {
			return nil, fmt.Errorf("取引の読み込みに失敗: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("取引日時が不正です (id=%s): %w", t.ID, err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// ListCurrencies は登録済みの全通貨を返す。
func (s *Store) ListCurrencies(ctx context.Context) ([]Currency, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, exchange_rate, is_base FROM currencies ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("通貨一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var currencies []Currency
	for rows.Next() {
		var c Currency
		if err := rows.Scan(&c.Name, &c.ExchangeRate, &c.IsBase); err != nil {
			return nil, fmt.Errorf("通貨の読み込みに失敗: %w", err)
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}

// BaseCurrency は基軸通貨を返す。
func (s *Store) BaseCurrency(ctx context.Context) (Currency, error) {
	var c Currency
	err := s.db.QueryRowContext(ctx,
		"SELECT name, exchange_rate, is_base FROM currencies WHERE is_base = 1").
		Scan(&c.Name, &c.ExchangeRate, &c.IsBase)
	if errors.Is(err, sql.ErrNoRows) {
		return Currency{}, errNoBaseCurrency
	}
	if err != nil {
		return Currency{}, fmt.Errorf("基軸通貨の取得に失敗: %w", err)
	}
	return c, nil
}

// MainCurrency はユーザーの最も古い口座の通貨名を返す。
// 口座が無い場合は基軸通貨を返す。
func (s *Store) MainCurrency(ctx context.Context, userID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT currency_name FROM bills
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		base, err := s.BaseCurrency(ctx)
		if err != nil {
			return "", err
		}
		return base.Name, nil
	}
	if err != nil {
		return "", fmt.Errorf("主通貨の取得に失敗: %w", err)
	}
	return name, nil
}

// SearchBills は口座番号がprefixで始まる他ユーザーの口座を口座番号順に返す。
func (s *Store) SearchBills(ctx context.Context, prefix, excludeUserID string, limit int) ([]BillSearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.account_bill_number, b.currency_name, u.first_name, u.last_name
		FROM bills b
		JOIN users u ON u.id = b.user_id
		WHERE b.account_bill_number LIKE ? ESCAPE '\' AND b.user_id <> ?
		ORDER BY b.account_bill_number ASC
		LIMIT ?`,
		escapeLike(prefix)+"%", excludeUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("口座検索に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]BillSearchResult, 0)
	for rows.Next() {
		var r BillSearchResult
		if err := rows.Scan(&r.ID, &r.AccountBillNumber, &r.CurrencyName, &r.OwnerFirstName, &r.OwnerLastName); err != nil {
			return nil, fmt.Errorf("検索結果の読み込みに失敗: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// escapeLike はLIKEのワイルドカードをエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// CreateUserWithBill はユーザーと最初の口座を1トランザクションで作成する。
// メールアドレスの重複は errEmailTaken、口座番号の重複は errAccountNumberTaken を返す。
func (s *Store) CreateUserWithBill(ctx context.Context, u User, b Bill) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, formatTime(u.CreatedAt)); err != nil {
		if isUniqueViolation(err, "users.email") {
			return errEmailTaken
		}
		return fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bills (id, user_id, account_bill_number, currency_name, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.AccountBillNumber, b.CurrencyName, formatTime(b.CreatedAt)); err != nil {
		if isUniqueViolation(err, "bills.account_bill_number") {
			return errAccountNumberTaken
		}
		return fmt.Errorf("口座の作成に失敗: %w", err)
	}

	return tx.Commit()
}

// FindUserByEmail はメールアドレスでユーザーを検索する。
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u         User
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, first_name, last_name, role, created_at
		FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("ユーザーの作成日時が不正です (id=%s): %w", u.ID, err)
	}
	return &u, nil
}

// UpdateExchangeRates は登録済み通貨の為替レートを更新し、更新件数を返す。
// 基軸通貨と未登録の通貨は更新しない。
func (s *Store) UpdateExchangeRates(ctx context.Context, rates map[string]decimal.Decimal, at time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	updated := 0
	for name, rate := range rates {
		res, err := tx.ExecContext(ctx,
			"UPDATE currencies SET exchange_rate = ?, updated_at = ? WHERE name = ? AND is_base = 0",
			rate.String(), formatTime(at), name)
		if err != nil {
			return 0, fmt.Errorf("為替レートの更新に失敗 (currency=%s): %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
		}
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("コミットに失敗: %w", err)
	}
	return updated, nil
}

// isUniqueViolation はerrがcolumnに対するUNIQUE制約違反かどうかを判定する。
func isUniqueViolation(err error, column string) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(sqliteErr.Error(), column)
}
