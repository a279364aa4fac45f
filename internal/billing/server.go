package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/nao1215/bills/pkg/apperror"
	"github.com/nao1215/bills/pkg/httpclient"
	"github.com/nao1215/bills/pkg/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// Server は口座参照サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はタイムアウト設定付きのHTTPサーバー。
	httpServer *http.Server
	// cfg はサービス設定。
	cfg Config
	// logger は構造化ロガー。
	logger *zap.Logger
	// db はSQLiteのデータベース接続。テスト用サーバーではnil。
	db *sql.DB
	// store は口座・ユーザーの保存先。テスト用サーバーではnilの場合がある。
	store *Store
	// service は /Bills 配下の処理の委譲先。
	service BillService
	// verifier はBearerトークンの検証器。
	verifier middleware.TokenVerifier
	// syncer は為替レートの定期同期。RATES_URL未設定時はnil。
	syncer *RateSyncer
	// openAPI は /openapi.json で返すドキュメント。
	openAPI *openapi3.T
	// passwordCost はbcryptのコスト。
	passwordCost int
	// comparePassword はハッシュとパスワードの照合関数。
	comparePassword func(hash, password []byte) error
	// dummyHash は未登録ユーザーのログイン時に照合するハッシュ。初回のログインで生成する。
	dummyHash     []byte
	dummyHashErr  error
	dummyHashOnce sync.Once
	// newAccountNumber は新規口座番号の生成関数。
	newAccountNumber func() string
}

// NewServer は新しいサーバーを生成する。
// SQLiteの初期化とマイグレーション、Store・Serviceの組み立てを行う。
func NewServer(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	db, err := openDatabase(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	store := NewStore(db)
	service := NewService(store, cfg.SearchLimit, cfg.HistoryLimit)

	s := newServer(cfg, logger, store, service)
	s.db = db
	if cfg.RatesURL != "" {
		s.syncer = NewRateSyncer(store, httpclient.New(cfg.RatesURL), cfg.RatesInterval, logger)
	}
	return s, nil
}

// newServer はルーティングとミドルウェアを組み立てる。
// テストではstoreをnilにしてBillServiceのスタブを渡せる。
func newServer(cfg Config, logger *zap.Logger, store *Store, service BillService) *Server {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:           router,
		cfg:              cfg,
		logger:           logger,
		store:            store,
		service:          service,
		verifier:         middleware.NewJWTVerifier(cfg.JWTSecret),
		openAPI:          buildOpenAPIDocument(cfg),
		passwordCost:     bcrypt.DefaultCost,
		comparePassword:  bcrypt.CompareHashAndPassword,
		newAccountNumber: newAccountBillNumber,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Run は為替レート同期を開始してからHTTPサーバーを起動する。
// Shutdownで停止された場合はnilを返す。
func (s *Server) Run(ctx context.Context) error {
	if s.syncer != nil {
		s.syncer.Start(ctx)
	}

	s.logger.Info("HTTPサーバーを起動します", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	}
	return nil
}

// Shutdown はサーバーを停止する。
// 為替レート同期の停止、処理中リクエストの完了待ち、データベース接続のクローズを行う。
func (s *Server) Shutdown(ctx context.Context) error {
	if s.syncer != nil {
		s.syncer.Stop()
	}

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTPサーバーの停止に失敗: %w", err))
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("データベースのクローズに失敗: %w", err))
		}
	}
	return errors.Join(errs...)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	bills := s.router.Group("/Bills")
	bills.Use(middleware.Authenticate(s.verifier))
	bills.Use(middleware.RequireRoles(RoleUser, RoleAdmin))
	{
		// 口座一覧
		bills.GET("", s.handleListBills())
		// 他ユーザーからの受取額合計
		bills.GET("/amountMoney", s.handleTotalAmountMoney())
		// 残高合計
		bills.GET("/accountBalance", s.handleTotalAccountBalance())
		// 残高推移
		bills.GET("/accountBalanceHistory", s.handleTotalAccountBalanceHistory())
		// 口座番号検索
		bills.GET("/:accountBillNumber/search", s.handleSearchBills())
	}

	auth := s.router.Group("/auth")
	{
		auth.POST("/register", s.handleRegister())
		auth.POST("/login", s.handleLogin())
	}

	s.router.GET("/openapi.json", s.handleOpenAPI())
	s.router.GET("/health", s.handleHealth())
}

// requireUser はコンテキストから認証済みユーザーを取り出す。
// 取り出せない場合はリクエストを中断してfalseを返す。
func requireUser(c *gin.Context) (*middleware.AuthenticatedUser, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortWithError(c, apperror.Authentication("認証済みユーザーが見つかりません", nil))
		return nil, false
	}
	return user, true
}

// handleListBills はユーザーの口座一覧をページングして返すハンドラ。
// クエリパラメータ page, size, order を受け付ける。
func (s *Server) handleListBills() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}

		opts, err := bindBillsPageOptions(c, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		page, err := s.service.GetBills(c.Request.Context(), user, opts)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// handleTotalAmountMoney は他ユーザーから受け取った金額の合計を返すハンドラ。
func (s *Server) handleTotalAmountMoney() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}

		total, err := s.service.GetTotalAmountMoney(c.Request.Context(), user)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, total)
	}
}

// handleTotalAccountBalance は残高合計を返すハンドラ。
func (s *Server) handleTotalAccountBalance() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}

		balance, err := s.service.GetTotalAccountBalance(c.Request.Context(), user)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, balance)
	}
}

// handleTotalAccountBalanceHistory は残高推移を返すハンドラ。
func (s *Server) handleTotalAccountBalanceHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}

		history, err := s.service.GetTotalAccountBalanceHistory(c.Request.Context(), user)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

// handleSearchBills は口座番号で他ユーザーの口座を検索するハンドラ。
// 該当なしの場合も200で空配列を返す。
func (s *Server) handleSearchBills() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}

		accountBillNumber := strings.TrimSpace(c.Param("accountBillNumber"))
		if accountBillNumber == "" {
			middleware.AbortWithError(c, apperror.Validation("口座番号が必要です"))
			return
		}

		results, err := s.service.SearchBills(c.Request.Context(), accountBillNumber, user)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, SearchBillsPayload{Bills: toSearchBillResponses(results)})
	}
}

// handleOpenAPI はAPI定義を返すハンドラ。
func (s *Server) handleOpenAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.openAPI)
	}
}

// handleHealth はヘルスチェックのハンドラ。データベースに疎通できない場合は503を返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.store != nil {
			if err := s.store.Ping(c.Request.Context()); err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "billing"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "billing"})
	}
}
