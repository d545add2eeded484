// Package camera ネットワークカメラソースの接続とフレーム取得を担う
//
// # 責務
// - カメラソースURLの到達性検査（接続プローブ）
// - LAN上のDroidCam / IP Webcam系ポートのスキャンと候補URL生成
// - MJPEG over HTTPストリームからの連続フレーム取得
// - 有界・最新優先（drop-oldest）のフレームキュー
// - ソース種別ごとの生成ファクトリー
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - キャプチャセッションを開く前にURLの到達性を確認したい
// - ネットワークカメラから連続的にJPEGフレームを取得したい
// - 取得側と処理側の速度差を最新優先のキューで吸収したい
//
// # 仕様
// - Probe: TCP到達性検査。失敗原因（不達・タイムアウト・拒否・不正URL）を区別する
// - Scanner: 既知ポート（4747, 4748, 5050, 8080）の並列スキャン
// - MJPEGSource: 長寿命HTTP接続からJPEGマーカー（FF D8 / FF D9）でフレーム分割
// - FrameQueue: 容量固定。満杯時は最古フレームを破棄して新フレームを受け入れる
// - 全てのブロッキング操作はタイムアウトで有界
//
// # 前提要件
//   - DroidCam / IP Webcam等のMJPEG over HTTP配信アプリ
//     例: http://192.168.1.100:4747/video
//   - カメラ端末とサーバーが同一ネットワークに接続されていること
package camera
