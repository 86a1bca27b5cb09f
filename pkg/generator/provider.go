package generator

import (
	"context"
	"time"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

const (
	// DefaultCallTimeout は1回の生成呼び出しに許容する時間です。
	DefaultCallTimeout = 90 * time.Second
	// maxAttempts は初回を含む最大試行回数です。再試行は Timeout と NetworkError のときに1回だけ行います。
	maxAttempts = 2
)

// Image はプロバイダーが返した生成画像です。
type Image struct {
	Data     []byte
	MimeType string
}

// Provider は外部の画像生成サービスを表すインターフェースです。
// 分類済みの失敗は *domain.GenerationError として返します。
type Provider interface {
	Name() string
	Generate(ctx context.Context, req domain.GenerationRequest) (*Image, error)
}

// kindForStatus は HTTP ステータスコードから失敗の種類を決定します。
func kindForStatus(code int) domain.GenerationErrorKind {
	switch {
	case code == 402 || code == 429:
		return domain.QuotaExceeded
	case code == 408 || code == 504:
		return domain.Timeout
	case code >= 500:
		return domain.NetworkError
	}
	return domain.MalformedResponse
}
