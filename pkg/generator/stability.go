package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/imgutil"
)

const (
	DefaultStabilityBaseURL = "https://api.stability.ai"
	DefaultStabilityEngine  = "stable-diffusion-xl-1024-v1-0"

	// maxStabilityResponseBytes は読み込むレスポンス本文の上限です。
	maxStabilityResponseBytes = 32 << 20
)

// StabilityProvider は Stability AI の REST v1 生成 API を使うプロバイダーです。
// 参照画像がある場合は image-to-image、ない場合は text-to-image を呼び出します。
type StabilityProvider struct {
	apiKey  string
	engine  string
	baseURL string
	client  *http.Client
}

// NewStabilityProvider は StabilityProvider を生成します。client が nil の場合は既定のクライアントを使います。
func NewStabilityProvider(apiKey, engine, baseURL string, client *http.Client) (*StabilityProvider, error) {
	if apiKey == "" {
		return nil, errors.New("STABILITY_API_KEY が設定されていません")
	}
	if engine == "" {
		engine = DefaultStabilityEngine
	}
	if baseURL == "" {
		baseURL = DefaultStabilityBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * DefaultCallTimeout}
	}
	return &StabilityProvider{
		apiKey:  apiKey,
		engine:  engine,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}, nil
}

func (s *StabilityProvider) Name() string {
	return "stability:" + s.engine
}

type stabilityTextPrompt struct {
	Text   string  `json:"text"`
	Weight float32 `json:"weight"`
}

type stabilityTextToImage struct {
	TextPrompts []stabilityTextPrompt `json:"text_prompts"`
	CfgScale    float32               `json:"cfg_scale"`
	Width       int                   `json:"width"`
	Height      int                   `json:"height"`
	Steps       int                   `json:"steps"`
	Samples     int                   `json:"samples"`
	Seed        int64                 `json:"seed"`
}

type stabilityErrorBody struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Generate は1枚の画像を生成します。
func (s *StabilityProvider) Generate(ctx context.Context, req domain.GenerationRequest) (*Image, error) {
	var (
		httpReq *http.Request
		err     error
	)
	if req.HasReference() {
		httpReq, err = s.imageToImageRequest(ctx, req)
	} else {
		httpReq, err = s.textToImageRequest(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Accept", "image/png")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStabilityResponseBytes))
	if err != nil {
		return nil, domain.NewGenerationError(domain.NetworkError, fmt.Errorf("レスポンスの読み込みに失敗しました: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStabilityStatus(resp.StatusCode, body)
	}
	if strings.EqualFold(resp.Header.Get("Finish-Reason"), "CONTENT_FILTERED") {
		return nil, domain.NewGenerationError(domain.ModerationRejected, errors.New("生成画像がコンテンツフィルタで除外されました"))
	}
	mime, ok := imgutil.DetectImageMimeType(body)
	if !ok {
		return nil, domain.NewGenerationError(domain.MalformedResponse, fmt.Errorf("画像ではないレスポンスです: %s", mime))
	}
	return &Image{Data: body, MimeType: mime}, nil
}

func (s *StabilityProvider) textToImageRequest(ctx context.Context, req domain.GenerationRequest) (*http.Request, error) {
	payload := stabilityTextToImage{
		TextPrompts: stabilityPrompts(req),
		CfgScale:    req.GuidanceScale,
		Width:       req.Width,
		Height:      req.Height,
		Steps:       req.Steps,
		Samples:     1,
		Seed:        req.Seed,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("text-to-image"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// imageToImageRequest は参照画像を生成寸法に合わせてから multipart で送信します。
// SDXL の image-to-image は出力寸法を初期画像から決めるためです。
func (s *StabilityProvider) imageToImageRequest(ctx context.Context, req domain.GenerationRequest) (*http.Request, error) {
	initImage, err := imgutil.FitReference(req.ReferenceImage, req.Width, req.Height)
	if err != nil {
		return nil, domain.NewGenerationError(domain.MalformedResponse, fmt.Errorf("参照画像を整形できません: %w", err))
	}

	strength := float32(0.7)
	if req.ReferenceStrength != nil {
		strength = *req.ReferenceStrength
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"init_image_mode", "IMAGE_STRENGTH"},
		{"image_strength", strconv.FormatFloat(float64(strength), 'f', 2, 32)},
		{"cfg_scale", strconv.FormatFloat(float64(req.GuidanceScale), 'f', -1, 32)},
		{"steps", strconv.Itoa(req.Steps)},
		{"samples", "1"},
		{"seed", strconv.FormatInt(req.Seed, 10)},
	}
	for i, p := range stabilityPrompts(req) {
		fields = append(fields,
			[2]string{fmt.Sprintf("text_prompts[%d][text]", i), p.Text},
			[2]string{fmt.Sprintf("text_prompts[%d][weight]", i), strconv.FormatFloat(float64(p.Weight), 'f', -1, 32)},
		)
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	part, err := w.CreateFormFile("init_image", "init.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(initImage); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("image-to-image"), &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return httpReq, nil
}

func (s *StabilityProvider) endpoint(kind string) string {
	return fmt.Sprintf("%s/v1/generation/%s/%s", s.baseURL, s.engine, kind)
}

func stabilityPrompts(req domain.GenerationRequest) []stabilityTextPrompt {
	prompts := []stabilityTextPrompt{{Text: req.PositivePrompt, Weight: 1}}
	if req.NegativePrompt != "" {
		prompts = append(prompts, stabilityTextPrompt{Text: req.NegativePrompt, Weight: -1})
	}
	return prompts
}

func classifyStabilityStatus(code int, body []byte) error {
	var eb stabilityErrorBody
	_ = json.Unmarshal(body, &eb)
	cause := fmt.Errorf("Stability API エラー (status=%d, name=%s): %s", code, eb.Name, eb.Message)

	if code == http.StatusBadRequest && eb.Name == "invalid_prompts" {
		return domain.NewGenerationError(domain.ModerationRejected, cause)
	}
	return domain.NewGenerationError(kindForStatus(code), cause)
}
