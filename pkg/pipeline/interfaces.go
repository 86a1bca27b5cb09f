package pipeline

import (
	"context"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/imgutil"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// Parser は物語を下書きコマ列に変換するインターフェースです。
type Parser interface {
	Parse(story domain.Story) ([]domain.DraftPanel, error)
}

// PromptEnhancer は下書きコマから画像生成要求を組み立てます。
type PromptEnhancer interface {
	Build(panel domain.DraftPanel, format prompts.Format, chars []domain.Character) domain.GenerationRequest
}

// ImageGenerator は1コマ分の画像を生成します。失敗も PanelResult として返します。
type ImageGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) domain.PanelResult
}

// ImageNormalizer は生成画像を保存用のサイズに収めます。
type ImageNormalizer interface {
	Normalize(data []byte) (*imgutil.Normalized, error)
}
