package billing

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/bills/pkg/apperror"
	"github.com/nao1215/bills/pkg/middleware"
	"golang.org/x/crypto/bcrypt"
)

// maxAccountNumberAttempts は口座番号が衝突した場合の再生成回数の上限。
const maxAccountNumberAttempts = 5

// accountBillNumberLength は口座番号の桁数。
const accountBillNumberLength = 26

// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const maxPasswordBytes = 72

// registerRequest はユーザー登録のリクエストボディ。
type registerRequest struct {
	Email     string `json:"email" binding:"required,email,max=254"`
	Password  string `json:"password" binding:"required,min=8,max=72"`
	FirstName string `json:"firstName" binding:"required,max=100"`
	LastName  string `json:"lastName" binding:"required,max=100"`
}

// loginRequest はログインのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// userResponse は認証レスポンスに含めるユーザー情報。
type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// registeredBillResponse は登録時に作成した口座の情報。
type registeredBillResponse struct {
	AccountBillNumber string `json:"accountBillNumber"`
	CurrencyName      string `json:"currencyName"`
}

// authResponse はユーザー登録・ログインのレスポンス。
type authResponse struct {
	Token string                  `json:"token"`
	User  userResponse            `json:"user"`
	Bill  *registeredBillResponse `json:"bill,omitempty"`
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
	}
}

// handleRegister はUSERロールのユーザーと基軸通貨の口座を作成し、トークンを返すハンドラ。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, validationFromBinding("登録内容が不正です", err))
			return
		}

		if len(req.Password) > maxPasswordBytes {
			middleware.AbortWithError(c, apperror.Validation("登録内容が不正です",
				fmt.Sprintf("password は%dバイト以下で指定してください", maxPasswordBytes)))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.passwordCost)
		if err != nil {
			middleware.AbortWithError(c, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err))
			return
		}

		ctx := c.Request.Context()
		base, err := s.store.BaseCurrency(ctx)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		now := time.Now().UTC()
		user := User{
			ID:           uuid.NewString(),
			Email:        normalizeEmail(req.Email),
			PasswordHash: string(hash),
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			Role:         RoleUser,
			CreatedAt:    now,
		}
		bill := Bill{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			CurrencyName: base.Name,
			CreatedAt:    now,
		}

		for attempt := 1; ; attempt++ {
			bill.AccountBillNumber = s.newAccountNumber()
			err = s.store.CreateUserWithBill(ctx, user, bill)
			if !errors.Is(err, errAccountNumberTaken) || attempt >= maxAccountNumberAttempts {
				break
			}
		}
		switch {
		case errors.Is(err, errEmailTaken):
			middleware.AbortWithError(c, apperror.Conflict("このメールアドレスは既に登録されています", err))
			return
		case err != nil:
			middleware.AbortWithError(c, err)
			return
		}

		token, err := s.issueToken(user)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusCreated, authResponse{
			Token: token,
			User:  toUserResponse(user),
			Bill: &registeredBillResponse{
				AccountBillNumber: bill.AccountBillNumber,
				CurrencyName:      bill.CurrencyName,
			},
		})
	}
}

// handleLogin はメールアドレスとパスワードを検証してトークンを返すハンドラ。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, validationFromBinding("ログイン内容が不正です", err))
			return
		}

		user, err := s.store.FindUserByEmail(c.Request.Context(), normalizeEmail(req.Email))
		if errors.Is(err, errUserNotFound) {
			// 未登録でも照合して応答時間を揃える
			if hash, hashErr := s.dummyPasswordHash(); hashErr == nil {
				_ = s.comparePassword(hash, []byte(req.Password))
			}
			middleware.AbortWithError(c, apperror.Authentication("メールアドレスまたはパスワードが正しくありません", err))
			return
		}
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		if err := s.comparePassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			middleware.AbortWithError(c, apperror.Authentication("メールアドレスまたはパスワードが正しくありません", err))
			return
		}

		token, err := s.issueToken(*user)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, authResponse{Token: token, User: toUserResponse(*user)})
	}
}

// dummyPasswordHash は登録時と同じコストで生成した照合用のハッシュを返す。
func (s *Server) dummyPasswordHash() ([]byte, error) {
	s.dummyHashOnce.Do(func() {
		s.dummyHash, s.dummyHashErr = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.passwordCost)
	})
	return s.dummyHash, s.dummyHashErr
}

func (s *Server) issueToken(u User) (string, error) {
	return middleware.GenerateJWT(s.cfg.JWTSecret, middleware.AuthenticatedUser{
		ID:    u.ID,
		Email: u.Email,
		Role:  u.Role,
	}, s.cfg.JWTTTL)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newAccountBillNumber はUUIDv4の16進数字を10進数字に写して26桁の口座番号を作る。
func newAccountBillNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")

	var b strings.Builder
	b.Grow(accountBillNumberLength)
	for i := 0; i < accountBillNumberLength; i++ {
		var v byte
		switch ch := hex[i]; {
		case ch >= '0' && ch <= '9':
			v = ch - '0'
		default:
			v = ch - 'a' + 10
		}
		b.WriteByte('0' + v%10)
	}
	return b.String()
}
