package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/imgutil"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/store"

	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// rateBurst は共有レートリミッタのバースト数です。
const rateBurst = 2

// initializeStyles はスタイルカタログを初期化します。
// 引数として既存のカタログが渡された場合はそれを返し、nil の場合は組み込みプリセットに path を重ねます。
func initializeStyles(styles *prompts.StyleCatalog, path string) (*prompts.StyleCatalog, error) {
	if styles != nil {
		return styles, nil
	}
	if path == "" {
		return prompts.NewStyleCatalog(), nil
	}
	catalog, err := prompts.LoadStyleCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("スタイル定義の読み込みに失敗しました: %w", err)
	}
	return catalog, nil
}

// initializeCharacters はキャラクターリポジトリを初期化します。
// 定義ファイルが指定されていない場合は空のリポジトリを返します。
func initializeCharacters(repo store.CharacterRepository, cfg config.Config, httpClient httpkit.ClientInterface) (store.CharacterRepository, error) {
	if repo != nil {
		return repo, nil
	}
	loader := asset.NewReferenceLoader(httpClient, cfg.ReferenceCache)
	if cfg.CharactersFile == "" {
		return store.NewCharacterRepository(nil, loader), nil
	}
	chars, err := store.LoadCharacterFile(cfg.CharactersFile, loader)
	if err != nil {
		return nil, err
	}
	slog.Debug("キャラクター定義を読み込みました", "path", cfg.CharactersFile, "count", len(chars.Names()))
	return chars, nil
}

// initializeComicStore は漫画の保存先を初期化します。SQLite の場合は解放用の関数も返します。
func initializeComicStore(repo store.ComicRepository, cfg config.Config) (store.ComicRepository, func() error, error) {
	if repo != nil {
		return repo, nil, nil
	}
	if strings.EqualFold(cfg.Store, config.StoreMemory) {
		return store.NewMemoryComicStore(), nil, nil
	}
	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("データベースの初期化に失敗しました: %w", err)
	}
	return db, db.Close, nil
}

// initializeProvider は設定に応じた画像生成プロバイダを初期化します。
// APIキーが未設定の場合は nil を返し、画像なしの作成のみ可能になります。
func initializeProvider(ctx context.Context, provider generator.Provider, cfg config.Config) (generator.Provider, error) {
	if provider != nil {
		return provider, nil
	}
	if cfg.APIKey() == "" {
		slog.Debug("APIキーが未設定のため画像生成プロバイダを初期化しません", "provider", cfg.Provider)
		return nil, nil
	}

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderStability:
		p, err := generator.NewStabilityProvider(cfg.StabilityAPIKey, cfg.StabilityEngine, cfg.StabilityBaseURL, nil)
		if err != nil {
			return nil, fmt.Errorf("Stability プロバイダの初期化に失敗しました: %w", err)
		}
		return p, nil
	default:
		client, err := generator.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
		}
		p, err := generator.NewGeminiProvider(client.Models, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("Gemini プロバイダの初期化に失敗しました: %w", err)
		}
		return p, nil
	}
}

// initializeParser は登録済みキャラクター名を既知の名前として StoryParser を初期化します。
func initializeParser(cfg config.Config, characters store.CharacterRepository) (*parser.StoryParser, error) {
	opts := parser.Options{
		MinPanels:      cfg.MinPanels,
		MaxPanels:      cfg.MaxPanels,
		MaxSceneLength: cfg.MaxSceneLength,
		KnownNames:     characters.Names(),
	}
	sp, err := parser.NewStoryParser(opts)
	if err != nil {
		return nil, fmt.Errorf("StoryParser の初期化に失敗しました: %w", err)
	}
	return sp, nil
}

func initializeNormalizer(cfg config.Config) *imgutil.Normalizer {
	return imgutil.NewNormalizer(cfg.MaxImageBytes)
}

// newLimiter は全コマで共有するレートリミッタを生成します。間隔が0以下なら制限しません。
func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(interval), rateBurst)
}
