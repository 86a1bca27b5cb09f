package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/domain"
)

var showImageDir string

// showCmd は1つの漫画の中身を表示し、必要ならコマ画像を書き出すのだ。
var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "漫画のコマを表示し、画像を書き出すのだ",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer m.Close()

		comic, err := m.GetComic(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("漫画の取得に失敗したのだ: %w", err)
		}
		printComic(cmd.OutOrStdout(), comic)

		if showImageDir == "" {
			return nil
		}
		paths, err := writePanelImages(showImageDir, comic)
		if err != nil {
			return err
		}
		slog.Info("コマ画像を書き出したのだ", "dir", showImageDir, "count", len(paths))
		return nil
	},
}

func init() {
	showCmd.Flags().StringVarP(&showImageDir, "image-dir", "i", "", "コマ画像を書き出すディレクトリなのだ。空なら書き出さないのだ。")
}

// printComic は漫画の概要とコマごとの文章を出力するのだ。
func printComic(w io.Writer, comic *domain.Comic) {
	fmt.Fprintf(w, "%s  %q  (%s, %s)\n", comic.ID, comic.Title, comic.Style, comic.AspectRatio)
	for _, p := range comic.Panels {
		status := "no image"
		switch {
		case p.HasImage():
			status = fmt.Sprintf("%s, %d bytes", p.ImageMimeType, len(p.Image))
		case p.Error != "":
			status = "failed: " + p.Error
		}
		fmt.Fprintf(w, "\n[%d] %s\n    %s\n", p.Index, status, p.Scene)
		if p.Dialogue != "" {
			fmt.Fprintf(w, "    「%s」\n", p.Dialogue)
		}
		if p.CharacterActions != nil {
			fmt.Fprintf(w, "    (%s)\n", *p.CharacterActions)
		}
	}
}

// writePanelImages は画像を持つコマを panel_N.ext として書き出すのだ。
func writePanelImages(dir string, comic *domain.Comic) ([]string, error) {
	var paths []string
	for _, p := range comic.Panels {
		if !p.HasImage() {
			continue
		}
		path, err := asset.PanelImagePath(dir, p.Index, p.ImageMimeType)
		if err != nil {
			return paths, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return paths, fmt.Errorf("出力先ディレクトリの作成に失敗したのだ: %w", err)
		}
		if err := os.WriteFile(path, p.Image, 0o644); err != nil {
			return paths, fmt.Errorf("コマ画像の書き出しに失敗したのだ: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
