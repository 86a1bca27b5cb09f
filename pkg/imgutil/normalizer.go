package imgutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

const (
	// DefaultMaxBytes は保存する1コマあたりの画像サイズの上限です。
	DefaultMaxBytes = 300 * 1024
	// DefaultMinDimension はこれより短辺が小さくなる縮小を行わない下限です。
	DefaultMinDimension = 64
)

var (
	defaultQualities = []int{90, 80, 70, 60, 50, 40}
	defaultScales    = []float64{1.0, 0.85, 0.7, 0.55, 0.4, 0.3}
)

// Normalizer は生成画像を保存用のサイズ上限に収まるよう再エンコードします。
type Normalizer struct {
	MaxBytes     int
	Qualities    []int
	Scales       []float64
	MinDimension int
}

// Normalized は正規化後の画像です。
type Normalized struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
	Quality  int     // 再エンコードしなかった場合は 0
	Scale    float64 // 元画像に対する縮小率
	Trace    []int   // 各試行後に保持していた最小サイズの推移
}

// NewNormalizer はデフォルトの試行スケジュールで Normalizer を生成します。
func NewNormalizer(maxBytes int) *Normalizer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Normalizer{
		MaxBytes:     maxBytes,
		Qualities:    defaultQualities,
		Scales:       defaultScales,
		MinDimension: DefaultMinDimension,
	}
}

// Normalize は画像を上限サイズ以下にします。
// 既に上限以下の画像はそのまま返し、それ以外は一度だけデコードして
// 縮小率と JPEG 品質の組み合わせを順に試します。
// 最小の縮小率・品質でも上限を超える場合は *domain.CompressionError を返します。
func (n *Normalizer) Normalize(data []byte) (*Normalized, error) {
	ceiling := n.MaxBytes
	if ceiling <= 0 {
		ceiling = DefaultMaxBytes
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.CompressionError{
			Size:    len(data),
			Ceiling: ceiling,
			Cause:   fmt.Errorf("画像のデコードに失敗しました: %w", err),
		}
	}
	bounds := img.Bounds()
	if len(data) <= ceiling {
		return &Normalized{
			Data:     data,
			MimeType: mimeForFormat(format),
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
			Scale:    1,
			Trace:    []int{len(data)},
		}, nil
	}

	flat := flatten(img)
	best := &Normalized{MimeType: "image/jpeg"}
	for _, scale := range n.scales() {
		w := max(1, int(math.Round(float64(bounds.Dx())*scale)))
		h := max(1, int(math.Round(float64(bounds.Dy())*scale)))
		if scale < 1 && min(w, h) < n.minDimension() {
			break
		}
		src := resize(flat, w, h)

		for _, q := range n.qualities() {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: q}); err != nil {
				return nil, &domain.CompressionError{Size: len(data), Ceiling: ceiling, Cause: err}
			}
			if best.Data == nil || buf.Len() < len(best.Data) {
				best.Data, best.Width, best.Height, best.Quality, best.Scale = buf.Bytes(), w, h, q, scale
			}
			best.Trace = append(best.Trace, len(best.Data))
			if len(best.Data) <= ceiling {
				return best, nil
			}
		}
	}

	size := len(data)
	if best.Data != nil {
		size = len(best.Data)
	}
	slog.Warn("画像を上限サイズに圧縮できませんでした。生成寸法と上限の組み合わせを見直してください",
		"size", size, "ceiling", ceiling, "width", bounds.Dx(), "height", bounds.Dy())
	return nil, &domain.CompressionError{Size: size, Ceiling: ceiling}
}

func (n *Normalizer) scales() []float64 {
	if len(n.Scales) == 0 {
		return defaultScales
	}
	return n.Scales
}

func (n *Normalizer) qualities() []int {
	if len(n.Qualities) == 0 {
		return defaultQualities
	}
	return n.Qualities
}

func (n *Normalizer) minDimension() int {
	if n.MinDimension <= 0 {
		return 1
	}
	return n.MinDimension
}

// flatten はアルファチャンネルを白背景に合成した RGBA 画像を返します。
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func resize(src *image.RGBA, w, h int) image.Image {
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func mimeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
