package imgutil

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
)

// FitReference は参照画像を指定寸法いっぱいに拡大縮小し、中央を切り抜いた PNG を返します。
func FitReference(data []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("不正な寸法です: %dx%d", width, height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("参照画像のデコードに失敗しました: %w", err)
	}

	src := flatten(img)
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	crop := src.Bounds()
	// 出力より横長なら左右を、縦長なら上下を切り落とす
	if sw*height > sh*width {
		cw := sh * width / height
		x0 := (sw - cw) / 2
		crop = image.Rect(x0, 0, x0+cw, sh)
	} else {
		ch := sw * height / width
		y0 := (sh - ch) / 2
		crop = image.Rect(0, y0, sw, y0+ch)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("参照画像のエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// DetectImageMimeType はバイト列を判定し、画像であればその MIME タイプを返します。
func DetectImageMimeType(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	mime := http.DetectContentType(data)
	return mime, strings.HasPrefix(mime, "image/")
}
