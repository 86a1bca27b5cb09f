package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/internal/config"
	kitconfig "github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/workflow"
)

// globalOptions は全サブコマンドで共有するフラグなのだ。
type globalOptions struct {
	verbose bool
	envFile string
	store   string
	dbPath  string
}

var global globalOptions

var rootCmd = &cobra.Command{
	Use:   "comic-kit",
	Short: "物語テキストから数コマの漫画を作るのだ",
	Long: `comic-kit は物語テキストをコマに分け、コマごとに画像を生成して漫画として保存するのだ。
画像生成には GEMINI_API_KEY か STABILITY_API_KEY が必要なのだ。--no-images ならキーは要らないのだ。`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(root *cobra.Command) {
	root.PersistentFlags().BoolVarP(&global.verbose, "verbose", "v", false, "デバッグログを出力するのだ。")
	root.PersistentFlags().StringVar(&global.envFile, "env-file", config.DefaultEnvFile, "読み込む .env ファイルのパスなのだ。")
	root.PersistentFlags().StringVar(&global.store, "store", "", "保存先 (sqlite または memory) なのだ。未指定なら COMIC_STORE に従うのだ。")
	root.PersistentFlags().StringVar(&global.dbPath, "db", "", "SQLite データベースのパスなのだ。未指定なら COMIC_DB_PATH に従うのだ。")
}

// preRunAppE は、コマンド実行前にロガーと環境変数を準備するのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if global.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := config.LoadEnvFile(global.envFile); err != nil {
		return fmt.Errorf(".env ファイルの読み込みに失敗したのだ: %w", err)
	}
	return nil
}

// loadConfig は環境変数とグローバルフラグから設定を組み立てるのだ。
func loadConfig() kitconfig.Config {
	cfg := config.LoadConfig()
	if global.store != "" {
		cfg.Store = global.store
	}
	if global.dbPath != "" {
		cfg.DBPath = global.dbPath
	}
	return cfg
}

// newManager は設定から Manager を作るのだ。使い終わったら Close するのだ。
// customize が nil でなければ、組み立て前に依存関係を差し替えられるのだ。
func newManager(ctx context.Context, customize func(args *workflow.ManagerArgs) error) (*workflow.Manager, error) {
	args := workflow.ManagerArgs{Config: loadConfig()}
	if customize != nil {
		if err := customize(&args); err != nil {
			return nil, err
		}
	}
	m, err := workflow.New(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("初期化に失敗したのだ: %w", err)
	}
	return m, nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(createCmd, listCmd, showCmd, deleteCmd, stylesCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
