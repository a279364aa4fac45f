// Package apperror はサービス全体で共通のエラー分類を提供する。
//
// HTTP層はKindを見てステータスコードを決定する。Kindを持たないエラーは
// 下位層（BillService等）から伝播した委譲エラーとして扱われる。
package apperror

import (
	"errors"
	"fmt"
)

// Kind はエラーの種類を表す。
type Kind string

const (
	// KindAuthentication は有効な認証情報が無いことを表す。
	KindAuthentication Kind = "authentication"
	// KindAuthorization は認証済みだがロールが不足していることを表す。
	KindAuthorization Kind = "authorization"
	// KindValidation は入力パラメータが不正であることを表す。
	KindValidation Kind = "validation"
	// KindNotFound は対象リソースが存在しないことを表す。
	KindNotFound Kind = "not_found"
	// KindConflict は一意制約などの競合を表す。
	KindConflict Kind = "conflict"
)

// Error は種類付きのアプリケーションエラー。
type Error struct {
	// Kind はエラーの種類。
	Kind Kind
	// Message はクライアントに返すメッセージ。
	Message string
	// Details はバリデーションエラー等の補足情報。
	Details []string
	// Err はラップされた元のエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Authentication は認証エラーを生成する。
func Authentication(msg string, err error) *Error {
	return &Error{Kind: KindAuthentication, Message: msg, Err: err}
}

// Authorization は認可エラーを生成する。
func Authorization(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

// Validation はバリデーションエラーを生成する。
func Validation(msg string, details ...string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

// NotFound はリソース未検出エラーを生成する。
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Conflict は競合エラーを生成する。
func Conflict(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Err: err}
}

// KindOf はエラーチェーンからKindを取り出す。
// apperror.Errorを含まない場合は空文字列とfalseを返す。
func KindOf(err error) (Kind, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind, true
	}
	return "", false
}

// Is はエラーチェーンに指定したKindのapperror.Errorが含まれるかを判定する。
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
