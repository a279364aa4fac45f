package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/bills/pkg/apperror"
)

// tokenIssuer はJWTのiss クレームに設定する発行者名。
const tokenIssuer = "bills-service"

// contextKeyUser は認証済みユーザーをGinコンテキストに格納するキー。
const contextKeyUser = "auth_user"

// AuthenticatedUser はリクエストごとに解決される認証済みユーザー。
type AuthenticatedUser struct {
	// ID はユーザーの一意識別子。
	ID string
	// Email はユーザーのメールアドレス。
	Email string
	// Role はユーザーのロール（USER, ADMIN等）。
	Role string
}

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Role はユーザーのロール。
	Role string `json:"role"`
}

// TokenVerifier はBearerトークンを検証し、ユーザーを解決する。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*AuthenticatedUser, error)
}

// GenerateJWT はユーザー情報からHS256署名のJWTトークンを生成する。
func GenerateJWT(secret string, user AuthenticatedUser, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// JWTVerifier は共有シークレットでHS256トークンを検証するTokenVerifier。
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier は新しいJWTVerifierを生成する。
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify はトークンの署名・有効期限・発行者を検証してユーザーを返す。
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*AuthenticatedUser, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}
	if claims.UserID == "" {
		return nil, errors.New("user_id claim is empty")
	}

	return &AuthenticatedUser{
		ID:    claims.UserID,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}

// Authenticate はBearerトークンをverifierで検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにAuthenticatedUserを設定する。
func Authenticate(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, apperror.Authentication("Authorizationヘッダーが必要です", nil))
			return
		}

		// スキーム名は大文字小文字を区別しない
		scheme, tokenString, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
			AbortWithError(c, apperror.Authentication("Bearer トークン形式が不正です", nil))
			return
		}

		user, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(tokenString))
		if err != nil {
			AbortWithError(c, apperror.Authentication("トークンが無効です", err))
			return
		}

		c.Set(contextKeyUser, user)
		c.Next()
	}
}

// JWTAuth は共有シークレットでJWTを検証する認証ミドルウェアを返す。
func JWTAuth(secret string) gin.HandlerFunc {
	return Authenticate(NewJWTVerifier(secret))
}

// CurrentUser はGinコンテキストから認証済みユーザーを取得する。
// Authenticateミドルウェアが事前に適用されている必要がある。
func CurrentUser(c *gin.Context) (*AuthenticatedUser, bool) {
	v, ok := c.Get(contextKeyUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*AuthenticatedUser)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}
