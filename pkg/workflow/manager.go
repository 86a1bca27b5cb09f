package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/store"

	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// ErrNoProvider は画像生成を要求されたが、プロバイダのAPIキーが設定されていない場合に返されます。
var ErrNoProvider = errors.New("画像生成プロバイダが設定されていません")

// ManagerArgs は Manager の初期化に必要な依存関係です。
// nil の項目は Config を基に既定の実装で構築されます。
type ManagerArgs struct {
	Config     config.Config
	HTTPClient httpkit.ClientInterface
	// Provider を指定すると Config のプロバイダ設定より優先されます。
	Provider   generator.Provider
	Comics     store.ComicRepository
	Characters store.CharacterRepository
	Styles     *prompts.StyleCatalog
}

// Manager は漫画作成パイプラインの各コンポーネントを構築・管理します。
type Manager struct {
	cfg      config.Config
	styles   *prompts.StyleCatalog
	pipeline *pipeline.ComicPipeline
	hasImage bool
	closers  []func() error
}

// New は設定を基に新しい Manager を初期化します。
func New(ctx context.Context, args ManagerArgs) (*Manager, error) {
	cfg := args.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}

	m := &Manager{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = m.Close()
		}
	}()

	styles, err := initializeStyles(args.Styles, cfg.StylesFile)
	if err != nil {
		return nil, err
	}
	m.styles = styles

	httpClient := args.HTTPClient
	if httpClient == nil {
		httpClient = httpkit.New(cfg.HTTPTimeout)
	}

	characters, err := initializeCharacters(args.Characters, cfg, httpClient)
	if err != nil {
		return nil, err
	}

	comics, closer, err := initializeComicStore(args.Comics, cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		m.closers = append(m.closers, closer)
	}

	provider, err := initializeProvider(ctx, args.Provider, cfg)
	if err != nil {
		return nil, err
	}

	var gen pipeline.ImageGenerator
	if provider != nil {
		adapter, err := generator.NewAdapter(provider, newLimiter(cfg.RateInterval), cfg.CallTimeout)
		if err != nil {
			return nil, fmt.Errorf("画像生成アダプタの初期化に失敗しました: %w", err)
		}
		gen = adapter
		m.hasImage = true
	}

	sp, err := initializeParser(cfg, characters)
	if err != nil {
		return nil, err
	}

	m.pipeline, err = pipeline.NewComicPipeline(
		sp,
		prompts.NewEnhancer(styles, cfg.ReferenceStrength),
		gen,
		initializeNormalizer(cfg),
		pipeline.NewAssembler(nil, nil),
		comics,
		characters,
		pipeline.Options{Workers: cfg.Workers, PersistTimeout: cfg.PersistTimeout},
	)
	if err != nil {
		return nil, fmt.Errorf("パイプラインの初期化に失敗しました: %w", err)
	}

	ok = true
	return m, nil
}

// CreateComic は物語から漫画を作成して保存します。
func (m *Manager) CreateComic(ctx context.Context, req pipeline.CreateRequest) (*domain.Comic, error) {
	if req.GenerateImages && !m.hasImage {
		return nil, fmt.Errorf("%w: %s のAPIキーを設定してください (%w)", ErrNoProvider, m.cfg.Provider, pipeline.ErrNoGenerator)
	}
	return m.pipeline.CreateComic(ctx, req)
}

// ListComics は保存済み漫画の要約を新しい順に返します。
func (m *Manager) ListComics(ctx context.Context) ([]domain.ComicSummary, error) {
	return m.pipeline.ListComics(ctx)
}

// GetComic は ID に対応する漫画を返します。
func (m *Manager) GetComic(ctx context.Context, id string) (*domain.Comic, error) {
	return m.pipeline.GetComic(ctx, id)
}

// DeleteComic は ID に対応する漫画を削除します。
func (m *Manager) DeleteComic(ctx context.Context, id string) error {
	return m.pipeline.DeleteComic(ctx, id)
}

// StyleNames は利用可能なスタイルプリセット名を返します。
func (m *Manager) StyleNames() []string {
	return m.styles.Names()
}

// Close は保持しているリソースを解放します。
func (m *Manager) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.Warn("リソースの解放に失敗しました", "error", err)
		return err
	}
	return nil
}
