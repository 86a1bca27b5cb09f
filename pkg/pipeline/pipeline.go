package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/store"
)

// ErrNoGenerator は画像生成を要求されたが ImageGenerator が設定されていない場合に返されます。
var ErrNoGenerator = errors.New("画像生成器が設定されていません")

const (
	DefaultWorkers        = 3
	DefaultPersistTimeout = 30 * time.Second
)

// CreateRequest は漫画作成の入力です。
type CreateRequest struct {
	Story          domain.Story
	Style          string
	AspectRatio    string
	GenerateImages bool
	// Timeout は画像生成全体の期限です。0 の場合は呼び出し元のコンテキストに従います。
	Timeout time.Duration
}

// Options は ComicPipeline の動作設定です。
type Options struct {
	Workers        int
	PersistTimeout time.Duration
}

// ComicPipeline は解析、プロンプト構築、画像生成、正規化、組み立て、保存の各工程をまとめます。
type ComicPipeline struct {
	parser     Parser
	enhancer   PromptEnhancer
	generator  ImageGenerator
	normalizer ImageNormalizer
	assembler  *Assembler
	comics     store.ComicRepository
	characters store.CharacterRepository
	opts       Options
}

// NewComicPipeline は各コンポーネントを受け取り ComicPipeline を生成します。
// characters は nil でも構いません。
func NewComicPipeline(
	parser Parser,
	enhancer PromptEnhancer,
	generator ImageGenerator,
	normalizer ImageNormalizer,
	assembler *Assembler,
	comics store.ComicRepository,
	characters store.CharacterRepository,
	opts Options,
) (*ComicPipeline, error) {
	if parser == nil || enhancer == nil || normalizer == nil || comics == nil {
		return nil, errors.New("parser, enhancer, normalizer, comics は必須です")
	}
	if assembler == nil {
		assembler = NewAssembler(nil, nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	return &ComicPipeline{
		parser:     parser,
		enhancer:   enhancer,
		generator:  generator,
		normalizer: normalizer,
		assembler:  assembler,
		comics:     comics,
		characters: characters,
		opts:       opts,
	}, nil
}

// CreateComic は物語から漫画を作成して保存します。
// コマ単位の生成失敗は作成全体を失敗させず、画像なしのコマとして記録されます。
// 呼び出し全体が失敗するのは、物語が空の場合、画像生成器なしで画像を要求した場合、保存に失敗した場合だけです。
func (p *ComicPipeline) CreateComic(ctx context.Context, req CreateRequest) (*domain.Comic, error) {
	if req.GenerateImages && p.generator == nil {
		return nil, ErrNoGenerator
	}

	drafts, err := p.parser.Parse(req.Story)
	if err != nil {
		return nil, fmt.Errorf("物語の解析に失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "物語をコマ割りしました", "title", req.Story.Title, "panels", len(drafts))

	format := prompts.Format{Style: req.Style, AspectRatio: req.AspectRatio}
	if format.Style == "" {
		format.Style = prompts.DefaultStyleName
	}
	if format.AspectRatio == "" {
		format.AspectRatio = prompts.DefaultAspectRatio
	}

	var results []domain.PanelResult
	if req.GenerateImages {
		chars := p.resolveCharacters(ctx, drafts)
		results = p.generatePanels(ctx, req.Timeout, drafts, format, chars)
	} else {
		results = make([]domain.PanelResult, len(drafts))
		for i, d := range drafts {
			results[i] = domain.SkippedResult(d.Index)
		}
	}

	comic, err := p.assembler.Assemble(drafts, results, Meta{
		Title:       req.Story.Title,
		Style:       format.Style,
		AspectRatio: format.AspectRatio,
		StoryText:   req.Story.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("漫画の組み立てに失敗しました: %w", err)
	}

	// 呼び出し元の期限切れ後も、組み立て済みの漫画は1回だけ保存を試みる
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.PersistTimeout)
	defer cancel()
	if _, err := p.comics.Save(saveCtx, comic); err != nil {
		slog.ErrorContext(ctx, "漫画の保存に失敗しました", "comic_id", comic.ID, "error", err)
		return nil, &domain.PersistenceError{ComicID: comic.ID, Cause: err}
	}

	summary := comic.Summary()
	slog.InfoContext(ctx, "漫画を保存しました",
		"comic_id", comic.ID, "panels", summary.PanelCount, "images", summary.ImageCount)
	return comic, nil
}

// ListComics は保存済み漫画の要約を新しい順に返します。
func (p *ComicPipeline) ListComics(ctx context.Context) ([]domain.ComicSummary, error) {
	return p.comics.List(ctx)
}

// GetComic は ID に対応する漫画を返します。
func (p *ComicPipeline) GetComic(ctx context.Context, id string) (*domain.Comic, error) {
	return p.comics.Get(ctx, id)
}

// DeleteComic は ID に対応する漫画を削除します。
func (p *ComicPipeline) DeleteComic(ctx context.Context, id string) error {
	return p.comics.Delete(ctx, id)
}

// generatePanels は同時実行数を制限して各コマの画像を生成します。
// あるコマの失敗は他のコマを中断させません。期限切れ後に未着手のコマは Timeout になります。
func (p *ComicPipeline) generatePanels(
	ctx context.Context,
	timeout time.Duration,
	drafts []domain.DraftPanel,
	format prompts.Format,
	chars []domain.Character,
) []domain.PanelResult {
	genCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results := make([]domain.PanelResult, len(drafts))
	var eg errgroup.Group
	eg.SetLimit(p.opts.Workers)

	for i, d := range drafts {
		eg.Go(func() error {
			if err := genCtx.Err(); err != nil {
				results[i] = domain.FailedResult(d.Index, domain.NewGenerationError(domain.Timeout, err))
				return nil
			}
			req := p.enhancer.Build(d, format, chars)
			res := p.generator.Generate(genCtx, req)
			if res.Succeeded() {
				res = p.normalize(genCtx, res)
			}
			results[i] = res
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (p *ComicPipeline) normalize(ctx context.Context, res domain.PanelResult) domain.PanelResult {
	n, err := p.normalizer.Normalize(res.Image)
	if err != nil {
		slog.WarnContext(ctx, "コマ画像を保存用サイズに正規化できませんでした", "panel_index", res.Index, "error", err)
		return domain.FailedResult(res.Index, domain.NewGenerationError(domain.CompressionFailed, err))
	}
	res.Image = n.Data
	res.MimeType = n.MimeType
	return res
}

// resolveCharacters はタグ付けされたキャラクターを初出順に1回ずつ解決します。
// 解決に失敗したキャラクターは参照なしとして扱います。
func (p *ComicPipeline) resolveCharacters(ctx context.Context, drafts []domain.DraftPanel) []domain.Character {
	if p.characters == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var chars []domain.Character
	for _, d := range drafts {
		for _, name := range d.Characters {
			key := strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			c, err := p.characters.Lookup(ctx, name)
			if err != nil {
				slog.WarnContext(ctx, "キャラクターの解決に失敗したため参照なしで続行します", "character", name, "error", err)
				continue
			}
			if c != nil {
				chars = append(chars, *c)
			}
		}
	}
	return chars
}
