package asset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shouni/go-utils/urlpath"
)

// DefaultPanelFileName はコマ画像を書き出す際の共通のベースファイル名です。
const DefaultPanelFileName = "panel.png"

// PanelFileRegex は書き出したコマ画像 (panel_1.png, panel_2.jpg 等) に一致します。
var PanelFileRegex = regexp.MustCompile(`^panel_\d+\.(png|jpg|gif|webp)$`)

// PanelImagePath はコマ番号と MIME タイプから書き出し先のパスを生成します。
// 例: ("out", 2, "image/jpeg") -> "out/panel_2.jpg"
func PanelImagePath(dir string, index int, mimeType string) (string, error) {
	base, err := urlpath.ResolveOutputPath(dir, panelFileName(mimeType))
	if err != nil {
		return "", fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	return urlpath.GenerateIndexedPath(base, index)
}

func panelFileName(mimeType string) string {
	ext := filepath.Ext(DefaultPanelFileName)
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		ext = ".jpg"
	case "image/gif":
		ext = ".gif"
	case "image/webp":
		ext = ".webp"
	}
	return strings.TrimSuffix(DefaultPanelFileName, filepath.Ext(DefaultPanelFileName)) + ext
}
