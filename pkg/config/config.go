package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/imgutil"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// 画像生成プロバイダの識別子
const (
	ProviderGemini    = "gemini"
	ProviderStability = "stability"
)

// 保存先の識別子
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// デフォルト値の定義
const (
	DefaultProvider       = ProviderGemini
	DefaultStore          = StoreSQLite
	DefaultDBPath         = "output/comics.db"
	DefaultRateInterval   = 2 * time.Second
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultReferenceCache = 30 * time.Minute
)

// Config は Go Comic Kit の各コンポーネントを動作させるための基本設定です。
type Config struct {
	// --- Provider Settings ---
	Provider     string // "gemini" または "stability"
	GeminiAPIKey string
	GeminiModel  string

	StabilityAPIKey  string
	StabilityEngine  string
	StabilityBaseURL string

	// --- Parser Settings ---
	MinPanels      int
	MaxPanels      int
	MaxSceneLength int

	// --- Generation Settings ---
	Workers           int
	RateInterval      time.Duration // 全コマで共有するプロバイダ呼び出しの最小間隔
	CallTimeout       time.Duration
	ReferenceStrength float32
	StylesFile        string // 追加スタイルプリセットのYAML

	// --- Normalization ---
	MaxImageBytes int

	// --- Storage ---
	Store          string
	DBPath         string
	PersistTimeout time.Duration
	CharactersFile string

	// --- Reference Loading ---
	HTTPTimeout    time.Duration
	ReferenceCache time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数です。
func DefaultConfig() Config {
	return Config{
		Provider:          DefaultProvider,
		GeminiModel:       generator.DefaultGeminiModel,
		StabilityEngine:   generator.DefaultStabilityEngine,
		StabilityBaseURL:  generator.DefaultStabilityBaseURL,
		MinPanels:         parser.DefaultMinPanels,
		MaxPanels:         parser.DefaultMaxPanels,
		MaxSceneLength:    parser.DefaultMaxSceneLength,
		Workers:           pipeline.DefaultWorkers,
		RateInterval:      DefaultRateInterval,
		CallTimeout:       generator.DefaultCallTimeout,
		ReferenceStrength: prompts.DefaultReferenceStrength,
		MaxImageBytes:     imgutil.DefaultMaxBytes,
		Store:             DefaultStore,
		DBPath:            DefaultDBPath,
		PersistTimeout:    pipeline.DefaultPersistTimeout,
		HTTPTimeout:       DefaultHTTPTimeout,
		ReferenceCache:    DefaultReferenceCache,
	}
}

// Validate は設定の矛盾を検出します。APIキーの有無は画像生成時にのみ確認します。
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Provider) {
	case ProviderGemini, ProviderStability:
	default:
		errs = append(errs, fmt.Errorf("未対応の画像生成プロバイダです: %q", c.Provider))
	}
	switch strings.ToLower(c.Store) {
	case StoreSQLite, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("未対応の保存先です: %q", c.Store))
	}
	if c.MinPanels < 1 || c.MaxPanels < c.MinPanels {
		errs = append(errs, fmt.Errorf("コマ数の範囲が不正です: [%d, %d]", c.MinPanels, c.MaxPanels))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("Workers は0以上である必要があります: %d", c.Workers))
	}
	if c.MaxImageBytes < 0 {
		errs = append(errs, fmt.Errorf("MaxImageBytes は0以上である必要があります: %d", c.MaxImageBytes))
	}
	return errors.Join(errs...)
}

// APIKey は選択中のプロバイダのAPIキーを返します。
func (c Config) APIKey() string {
	if strings.EqualFold(c.Provider, ProviderStability) {
		return c.StabilityAPIKey
	}
	return c.GeminiAPIKey
}
