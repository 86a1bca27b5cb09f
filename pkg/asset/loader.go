package asset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-comic-kit/pkg/imgutil"
)

const (
	// DefaultCacheExpiration は参照画像をキャッシュに保持する時間です。
	DefaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = time.Hour
)

// Fetcher は URL からバイト列を取得します。httpkit のクライアントがこれを満たします。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// ReferenceLoader はキャラクターの参照画像をローカルファイルまたは http(s) URL から読み込みます。
// 読み込んだ画像はキャッシュされ、同じ参照への同時リクエストは1回の取得にまとめられます。
type ReferenceLoader struct {
	fetcher Fetcher
	cache   *cache.Cache
	group   singleflight.Group
}

// NewReferenceLoader は ReferenceLoader を生成します。fetcher が nil の場合、URL の読み込みはエラーになります。
func NewReferenceLoader(fetcher Fetcher, expiration time.Duration) *ReferenceLoader {
	if expiration <= 0 {
		expiration = DefaultCacheExpiration
	}
	return &ReferenceLoader{
		fetcher: fetcher,
		cache:   cache.New(expiration, cacheCleanupInterval),
	}
}

// Load は参照画像を返します。画像として判定できないデータはエラーになります。
func (l *ReferenceLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("参照画像のパスが空です")
	}
	if val, ok := l.cache.Get(ref); ok {
		if data, ok := val.([]byte); ok {
			return data, nil
		}
	}

	v, err, shared := l.group.Do(ref, func() (any, error) {
		data, err := l.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		if mime, ok := imgutil.DetectImageMimeType(data); !ok {
			return nil, fmt.Errorf("参照画像として読み込めない形式です (%s): %s", ref, mime)
		}
		l.cache.Set(ref, data, cache.DefaultExpiration)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "参照画像を読み込みました", "ref", ref, "shared", shared)
	return v.([]byte), nil
}

func (l *ReferenceLoader) fetch(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if l.fetcher == nil {
			return nil, fmt.Errorf("URL の取得手段が設定されていません: %s", ref)
		}
		data, err := l.fetcher.FetchBytes(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("参照画像のダウンロードに失敗しました (%s): %w", ref, err)
		}
		return data, nil
	}

	data, err := os.ReadFile(strings.TrimPrefix(ref, "file://"))
	if err != nil {
		return nil, fmt.Errorf("参照画像の読み込みに失敗しました (%s): %w", ref, err)
	}
	return data, nil
}
