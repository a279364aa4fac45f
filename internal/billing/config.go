package billing

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はサービス全体の設定値。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DatabasePath はSQLiteファイルのパス。":memory:" でインメモリになる。
	DatabasePath string
	// JWTSecret はトークン署名用の共有シークレット。
	JWTSecret string
	// JWTTTL は発行するトークンの有効期間。
	JWTTTL time.Duration
	// DefaultPageSize は size 未指定時の1ページあたりの件数。
	DefaultPageSize int
	// MaxPageSize は size に指定できる最大値。
	MaxPageSize int
	// SearchLimit は口座検索で返す最大件数。
	SearchLimit int
	// HistoryLimit は残高履歴で返す最大件数。
	HistoryLimit int
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// RatesURL は為替レートAPIのベースURL。空なら同期しない。
	RatesURL string
	// RatesInterval は為替レートの同期間隔。
	RatesInterval time.Duration
	// LogLevel はログレベル（debug, info, warn, error）。
	LogLevel string
	// LogFormat はログ形式（json, console）。
	LogFormat string
	// ReadTimeout はHTTPサーバーの読み込みタイムアウト。
	ReadTimeout time.Duration
	// WriteTimeout はHTTPサーバーの書き込みタイムアウト。
	WriteTimeout time.Duration
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration
}

const (
	defaultPort            = "8080"
	defaultDatabasePath    = "/data/billing.db"
	defaultJWTSecret       = "dev-secret-key"
	defaultJWTTTL          = 24 * time.Hour
	defaultPageSize        = 10
	defaultMaxPageSize     = 50
	defaultSearchLimit     = 10
	defaultHistoryLimit    = 100
	defaultRatesInterval   = time.Hour
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// LoadConfig は環境変数から設定を読み込む。
// 未設定の項目にはデフォルト値を使い、不正な値はエラーにする。
func LoadConfig() (Config, error) {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) (Config, error) {
	env := envReader{getenv: getenv}

	cfg := Config{
		Port:            env.stringOr("PORT", defaultPort),
		DatabasePath:    env.stringOr("DATABASE_PATH", defaultDatabasePath),
		JWTSecret:       env.stringOr("JWT_SECRET", defaultJWTSecret),
		JWTTTL:          env.duration("JWT_TTL", defaultJWTTTL),
		DefaultPageSize: env.positiveInt("BILLS_DEFAULT_PAGE_SIZE", defaultPageSize),
		MaxPageSize:     env.positiveInt("BILLS_MAX_PAGE_SIZE", defaultMaxPageSize),
		SearchLimit:     env.positiveInt("SEARCH_LIMIT", defaultSearchLimit),
		HistoryLimit:    env.positiveInt("HISTORY_LIMIT", defaultHistoryLimit),
		AllowedOrigins:  allowedOrigins(getenv("CORS_ALLOWED_ORIGINS"), getenv("FRONTEND_URL")),
		RatesURL:        strings.TrimSpace(getenv("RATES_URL")),
		RatesInterval:   env.duration("RATES_INTERVAL", defaultRatesInterval),
		LogLevel:        env.stringOr("LOG_LEVEL", "info"),
		LogFormat:       env.stringOr("LOG_FORMAT", "json"),
		ReadTimeout:     env.duration("SERVER_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:    env.duration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
		ShutdownTimeout: env.duration("SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}
	if env.err != nil {
		return Config{}, env.err
	}

	if port, err := strconv.Atoi(cfg.Port); err != nil || port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("PORT の値が不正です: %q", cfg.Port)
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		return Config{}, fmt.Errorf("BILLS_DEFAULT_PAGE_SIZE(%d) が BILLS_MAX_PAGE_SIZE(%d) を超えています",
			cfg.DefaultPageSize, cfg.MaxPageSize)
	}
	return cfg, nil
}

// envReader は環境変数を型付きで読み込み、最初のエラーを保持する。
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) stringOr(key, fallback string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.fail(fmt.Errorf("%s の値が不正です: %q", key, v))
		return fallback
	}
	return d
}

func (r *envReader) positiveInt(key string, fallback int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.fail(fmt.Errorf("%s の値が不正です: %q", key, v))
		return fallback
	}
	return n
}

func (r *envReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// allowedOrigins はカンマ区切りのオリジン一覧とフロントエンドURLを結合する。
func allowedOrigins(csv, frontendURL string) []string {
	var origins []string
	for _, o := range strings.Split(csv, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if f := strings.TrimSpace(frontendURL); f != "" {
		origins = append(origins, f)
	}
	return origins
}
