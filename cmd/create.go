package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/examples"
	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/store"
	"github.com/shouni/go-comic-kit/pkg/workflow"

	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// createOptions は create コマンドのフラグなのだ。
type createOptions struct {
	storyFile   string
	title       string
	style       string
	aspectRatio string
	noImages    bool
	timeout     time.Duration
	example     bool
}

var createOpts createOptions

// createCmd は物語から漫画を作って保存するコマンドなのだ。
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "物語テキストから漫画を作って保存するのだ",
	Long: `物語テキストをコマに分け、コマごとに画像を生成して保存するのだ。
一部のコマの画像生成に失敗しても、漫画そのものは保存されるのだ。`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createOpts.storyFile, "story-file", "f", "-", "物語テキストのパスなのだ（'-'で標準入力なのだ）。")
	createCmd.Flags().StringVarP(&createOpts.title, "title", "t", "", "漫画のタイトルなのだ。空なら最初のシーンから作るのだ。")
	createCmd.Flags().StringVarP(&createOpts.style, "style", "s", prompts.DefaultStyleName, "画風のプリセット名なのだ。")
	createCmd.Flags().StringVarP(&createOpts.aspectRatio, "aspect-ratio", "a", prompts.DefaultAspectRatio, "コマの縦横比なのだ（例: 4:5, 16:9）。")
	createCmd.Flags().BoolVar(&createOpts.noImages, "no-images", false, "画像を生成せず、コマ割りだけを保存するのだ。")
	createCmd.Flags().DurationVar(&createOpts.timeout, "timeout", config.DefaultTimeout, "画像生成全体の期限なのだ。")
	createCmd.Flags().BoolVar(&createOpts.example, "example", false, "同梱の物語・キャラクター・画風を使うのだ。")
}

func runCreate(cmd *cobra.Command, args []string) error {
	story, err := readStory(cmd.InOrStdin())
	if err != nil {
		return err
	}

	m, err := newManager(cmd.Context(), func(a *workflow.ManagerArgs) error {
		if !createOpts.example {
			return nil
		}
		return useBundledExamples(a)
	})
	if err != nil {
		return err
	}
	defer m.Close()

	comic, err := m.CreateComic(cmd.Context(), pipeline.CreateRequest{
		Story:          story,
		Style:          createOpts.style,
		AspectRatio:    createOpts.aspectRatio,
		GenerateImages: !createOpts.noImages,
		Timeout:        createOpts.timeout,
	})
	if err != nil {
		return fmt.Errorf("漫画の作成に失敗したのだ: %w", err)
	}

	summary := comic.Summary()
	slog.Info("漫画が完成したのだ！", "id", comic.ID, "panels", summary.PanelCount, "images", summary.ImageCount)
	printComic(cmd.OutOrStdout(), comic)
	return nil
}

// readStory はフラグに従って物語を読み込むのだ。
func readStory(stdin io.Reader) (domain.Story, error) {
	if createOpts.example {
		story := examples.Story()
		if createOpts.title != "" {
			story.Title = createOpts.title
		}
		return story, nil
	}

	var (
		data []byte
		err  error
	)
	if createOpts.storyFile == "" || createOpts.storyFile == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(createOpts.storyFile)
	}
	if err != nil {
		return domain.Story{}, fmt.Errorf("物語の読み込みに失敗したのだ: %w", err)
	}
	return domain.Story{Text: string(data), Title: strings.TrimSpace(createOpts.title)}, nil
}

// useBundledExamples は同梱のキャラクターと画風を Manager に渡すのだ。
func useBundledExamples(a *workflow.ManagerArgs) error {
	chars, err := examples.Characters()
	if err != nil {
		return err
	}
	loader := asset.NewReferenceLoader(httpkit.New(a.Config.HTTPTimeout), a.Config.ReferenceCache)
	a.Characters = store.NewCharacterRepository(chars, loader)

	styles := prompts.NewStyleCatalog()
	if err := styles.Merge(examples.StylesYAML); err != nil {
		return fmt.Errorf("同梱の画風の読み込みに失敗したのだ: %w", err)
	}
	a.Styles = styles
	return nil
}
