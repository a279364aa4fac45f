// Package billing は口座（Bill）情報を参照するサービスの内部実装を提供する。
//
// /Bills 配下のエンドポイントは認証とロール判定（USER, ADMIN）の後にのみ
// BillService へ委譲する。BillService の実装は SQLite を保存先とし、
// 金額計算は shopspring/decimal で行う。
// 補助的に、ユーザー登録・ログイン、OpenAPIドキュメント、ヘルスチェック、
// 為替レートの定期同期を提供する。
package billing
