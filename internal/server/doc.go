// Package server は、HTTPサーバーとAPIエンドポイントを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// パイプラインの操作と検出結果の配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - パイプラインの開始・停止API
//   - 検出結果と統計情報のJSON配信
//   - アノテーション済みフレームのMJPEGストリーミング
//   - カメラソースの自動探索API
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時接続をサポート
package server
