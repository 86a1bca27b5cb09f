package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/shouni/go-utils/envutil"

	kitconfig "github.com/shouni/go-comic-kit/pkg/config"
)

// デフォルト値の定義なのだ
const (
	DefaultEnvFile = ".env"
	DefaultTimeout = 5 * time.Minute // create コマンドの画像生成全体の期限なのだ
)

// LoadEnvFile は .env ファイルがあれば環境変数に読み込むのだ。
// ファイルが無いのは普通のことなので、エラーにはしないのだ。
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug(".env ファイルが無いので環境変数だけを使うのだ", "path", path)
			return nil
		}
		return err
	}
	return nil
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
// 環境変数が無い項目はデフォルト値のままなのだ。
func LoadConfig() kitconfig.Config {
	cfg := kitconfig.DefaultConfig()

	cfg.Provider = envutil.GetEnv("IMAGE_PROVIDER", cfg.Provider)
	cfg.GeminiAPIKey = envutil.GetEnv("GEMINI_API_KEY", "")
	cfg.GeminiModel = envutil.GetEnv("IMAGE_GEMINI_MODEL", cfg.GeminiModel)
	cfg.StabilityAPIKey = envutil.GetEnv("STABILITY_API_KEY", "")
	cfg.StabilityEngine = envutil.GetEnv("STABILITY_ENGINE", cfg.StabilityEngine)
	cfg.StabilityBaseURL = envutil.GetEnv("STABILITY_BASE_URL", cfg.StabilityBaseURL)

	cfg.Store = envutil.GetEnv("COMIC_STORE", cfg.Store)
	cfg.DBPath = envutil.GetEnv("COMIC_DB_PATH", cfg.DBPath)
	cfg.StylesFile = envutil.GetEnv("COMIC_STYLES_FILE", "")
	cfg.CharactersFile = envutil.GetEnv("CHARACTERS_FILE", "")
	return cfg
}
