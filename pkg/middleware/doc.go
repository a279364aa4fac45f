// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンによる認証、ロールによる認可、リクエストID付与、
// アクセスログ、パニックリカバリ、CORS設定、およびエラーの
// HTTPレスポンスへの変換を含む。
package middleware
