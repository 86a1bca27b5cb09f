package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/imgutil"
)

// Adapter はプロバイダー呼び出しにレート制限、タイムアウト、失敗分類、1回だけの再試行を加えます。
// limiter はプロセス全体で共有されることを想定しています。
type Adapter struct {
	provider    Provider
	limiter     *rate.Limiter
	callTimeout time.Duration
}

// NewAdapter は Adapter を生成します。limiter が nil の場合はレート制限を行いません。
func NewAdapter(provider Provider, limiter *rate.Limiter, callTimeout time.Duration) (*Adapter, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider は必須です")
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Adapter{
		provider:    provider,
		limiter:     limiter,
		callTimeout: callTimeout,
	}, nil
}

// Generate は1コマ分の画像を生成します。
// 失敗はエラーとして返さず、分類済みの GenerationError を持つ PanelResult として返します。
func (a *Adapter) Generate(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
	logger := slog.With("panel_index", req.PanelIndex, "provider", a.provider.Name())

	var lastErr *domain.GenerationError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		startTime := time.Now()
		img, gerr := a.attempt(ctx, req)
		if gerr == nil {
			logger.InfoContext(ctx, "コマ画像の生成が完了しました",
				"attempt", attempt, "bytes", len(img.Data), "duration", time.Since(startTime).Round(time.Millisecond))
			return domain.PanelResult{Index: req.PanelIndex, Image: img.Data, MimeType: img.MimeType}
		}

		lastErr = gerr
		if !gerr.Kind.Retryable() || ctx.Err() != nil || attempt == maxAttempts {
			break
		}
		logger.WarnContext(ctx, "コマ画像の生成に失敗したため再試行します", "attempt", attempt, "kind", gerr.Kind, "error", gerr)
	}

	logger.ErrorContext(ctx, "コマ画像の生成に失敗しました", "kind", lastErr.Kind, "error", lastErr)
	return domain.FailedResult(req.PanelIndex, lastErr)
}

func (a *Adapter) attempt(ctx context.Context, req domain.GenerationRequest) (*Image, *domain.GenerationError) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, domain.NewGenerationError(domain.Timeout, fmt.Errorf("レート制限の待機中に期限切れになりました: %w", err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	img, err := a.provider.Generate(callCtx, req)
	if err != nil {
		return nil, classify(err)
	}
	if img == nil || len(img.Data) == 0 {
		return nil, domain.NewGenerationError(domain.MalformedResponse, errors.New("画像データが空です"))
	}
	mime, ok := imgutil.DetectImageMimeType(img.Data)
	if !ok {
		return nil, domain.NewGenerationError(domain.MalformedResponse, fmt.Errorf("画像ではないデータを受信しました: %s", mime))
	}
	return &Image{Data: img.Data, MimeType: mime}, nil
}

// classify は未分類のエラーを失敗の種類に振り分けます。
func classify(err error) *domain.GenerationError {
	var gerr *domain.GenerationError
	if errors.As(err, &gerr) {
		return gerr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewGenerationError(domain.Timeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewGenerationError(domain.Timeout, err)
	}
	return domain.NewGenerationError(domain.NetworkError, err)
}
