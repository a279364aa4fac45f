// Package httpclient は外部APIをJSONで呼び出すHTTPクライアントを提供する。
//
// 為替レートAPIなど、サービス外部のエンドポイントからJSONを取得する際に使用する。
// 2xx以外のレスポンスは StatusError として返す。
package httpclient
