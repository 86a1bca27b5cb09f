package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/imgutil"
)

// DefaultGeminiModel は画像出力に対応した Gemini モデルです。
const DefaultGeminiModel = "gemini-2.5-flash-image"

const geminiSystemInstruction = "You are a professional comic illustrator. Create a single high-quality comic panel. " +
	"Never draw speech bubbles, captions or any lettering."

// moderationFinishReasons は安全性による打ち切りを表す終了理由です。
var moderationFinishReasons = map[string]struct{}{
	"SAFETY":                   {},
	"PROHIBITED_CONTENT":       {},
	"BLOCKLIST":                {},
	"SPII":                     {},
	"IMAGE_SAFETY":             {},
	"IMAGE_PROHIBITED_CONTENT": {},
}

// ContentGenerator は genai.Models のうち画像生成に使うメソッドです。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider は Gemini の画像出力モデルを使うプロバイダーです。
type GeminiProvider struct {
	models ContentGenerator
	model  string
}

// NewGeminiClient は API キーから genai クライアントを生成するのだ。
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY が設定されていません")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}

// NewGeminiProvider は GeminiProvider を生成します。
func NewGeminiProvider(models ContentGenerator, model string) (*GeminiProvider, error) {
	if models == nil {
		return nil, errors.New("models (ContentGenerator) は必須です")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{models: models, model: model}, nil
}

func (g *GeminiProvider) Name() string {
	return "gemini:" + g.model
}

// Generate はプロンプトと参照画像をまとめて送信し、最初のインライン画像を返します。
func (g *GeminiProvider) Generate(ctx context.Context, req domain.GenerationRequest) (*Image, error) {
	parts := []*genai.Part{genai.NewPartFromText(geminiPrompt(req))}
	if req.HasReference() {
		if mime, ok := imgutil.DetectImageMimeType(req.ReferenceImage); ok {
			parts = append(parts, genai.NewPartFromBytes(req.ReferenceImage, mime))
		}
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(geminiSystemInstruction, genai.RoleUser),
		ResponseModalities: []string{"IMAGE"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: req.AspectRatio},
	}
	if req.Seed != 0 {
		seed := int32(req.Seed)
		config.Seed = &seed
	}

	resp, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	return geminiImage(resp)
}

// geminiPrompt はネガティブプロンプトと参照画像の扱いを本文に埋め込みます。
// Gemini にはネガティブプロンプトや参照強度の専用パラメータがないためです。
func geminiPrompt(req domain.GenerationRequest) string {
	var sb strings.Builder
	sb.WriteString(req.PositivePrompt)
	if req.NegativePrompt != "" {
		sb.WriteString("\n\nAVOID: ")
		sb.WriteString(req.NegativePrompt)
	}
	if req.HasReference() && req.ReferenceStrength != nil {
		fmt.Fprintf(&sb, "\n\nREFERENCE: Keep the character's appearance consistent with the attached image (adherence about %d%%).",
			int(*req.ReferenceStrength*100+0.5))
	}
	return sb.String()
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewGenerationError(kindForStatus(apiErr.Code), err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return domain.NewGenerationError(kindForStatus(apiErrPtr.Code), err)
	}
	return err
}

func geminiImage(resp *genai.GenerateContentResponse) (*Image, error) {
	if resp == nil {
		return nil, domain.NewGenerationError(domain.MalformedResponse, errors.New("レスポンスが空です"))
	}
	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" {
		return nil, domain.NewGenerationError(domain.ModerationRejected,
			fmt.Errorf("プロンプトがブロックされました: %s", pf.BlockReason))
	}

	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &Image{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}, nil
			}
		}
	}
	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}
		if _, ok := moderationFinishReasons[string(c.FinishReason)]; ok {
			return nil, domain.NewGenerationError(domain.ModerationRejected,
				fmt.Errorf("安全性フィルタにより生成が停止しました: %s", c.FinishReason))
		}
	}
	return nil, domain.NewGenerationError(domain.MalformedResponse, errors.New("レスポンスに画像データが含まれていません"))
}
