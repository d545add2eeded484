package camera

import (
	"fmt"
	"net/url"
	"time"
)

// SourceConfig はソース作成時の設定
type SourceConfig struct {
	URL         string        // ソースURL
	ReadTimeout time.Duration // 1フレーム読み取りのタイムアウト
}

// SourceCreator はソース作成関数の型
type SourceCreator func(config SourceConfig) (Source, error)

// SourceFactory はURLスキームに応じたソース作成ファクトリー
type SourceFactory struct {
	creators map[string]SourceCreator
}

// NewSourceFactory は新しいSourceFactoryを作成する
// http / https スキームのMJPEGソースが標準で登録される
func NewSourceFactory() *SourceFactory {
	factory := &SourceFactory{
		creators: make(map[string]SourceCreator),
	}

	// MJPEG over HTTPソースの作成関数を登録
	factory.Register("http", newMJPEGSourceFromConfig)
	factory.Register("https", newMJPEGSourceFromConfig)

	return factory
}

// Register はスキームに対するソース作成関数を登録する
func (f *SourceFactory) Register(scheme string, creator SourceCreator) {
	f.creators[scheme] = creator
}

// CreateSource は設定のURLスキームに対応するソースを作成する
func (f *SourceFactory) CreateSource(config SourceConfig) (Source, error) {
	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, &ConnectionError{URL: config.URL, Reason: ReasonMalformedURL, Err: err}
	}

	creator, exists := f.creators[u.Scheme]
	if !exists {
		return nil, &ConnectionError{
			URL:    config.URL,
			Reason: ReasonMalformedURL,
			Err:    fmt.Errorf("サポートされていないスキーム: %s", u.Scheme),
		}
	}

	return creator(config)
}

// SupportedSchemes はサポートされているスキーム一覧を返す
func (f *SourceFactory) SupportedSchemes() []string {
	schemes := make([]string, 0, len(f.creators))
	for scheme := range f.creators {
		schemes = append(schemes, scheme)
	}
	return schemes
}

// newMJPEGSourceFromConfig は設定からMJPEGSourceを作成する
func newMJPEGSourceFromConfig(config SourceConfig) (Source, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("MJPEGソースの作成にはURLが必要です")
	}
	return NewMJPEGSource(config.URL, config.ReadTimeout), nil
}
