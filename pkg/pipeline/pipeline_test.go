package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/imgutil"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/store"
)

const fourPanelStory = `Jamie found a glowing crystal in the garden. The moon rose over the old tower. ` +
	`"Look!" she whispered to Kai. Kai smiled and took the crystal.`

// --- Mocks ---

type fakeGenerator struct {
	mu       sync.Mutex
	requests []domain.GenerationRequest
	active   atomic.Int32
	peak     atomic.Int32
	fn       func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult
}

func (g *fakeGenerator) Generate(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.fn(ctx, req)
}

func (g *fakeGenerator) Requests() []domain.GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.GenerationRequest(nil), g.requests...)
}

type recordingStore struct {
	*store.MemoryComicStore
	saves atomic.Int32
	err   error
}

func (s *recordingStore) Save(ctx context.Context, comic *domain.Comic) (string, error) {
	s.saves.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.MemoryComicStore.Save(ctx, comic)
}

type stubCharacters struct {
	mu      sync.Mutex
	lookups map[string]int
	chars   map[string]*domain.Character
	err     map[string]error
}

func (s *stubCharacters) Lookup(ctx context.Context, name string) (*domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookups == nil {
		s.lookups = map[string]int{}
	}
	s.lookups[name]++
	if err := s.err[name]; err != nil {
		return nil, err
	}
	return s.chars[name], nil
}

func (s *stubCharacters) Names() []string { return []string{"Jamie", "Kai"} }

type failingNormalizer struct {
	inner   ImageNormalizer
	failFor map[int]bool
}

func (n *failingNormalizer) Normalize(data []byte) (*imgutil.Normalized, error) {
	if n.failFor[int(data[len(data)-1])] {
		return nil, &domain.CompressionError{Size: len(data), Ceiling: 10}
	}
	return n.inner.Normalize(data)
}

func panelPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

type fixture struct {
	pipeline   *ComicPipeline
	generator  *fakeGenerator
	store      *recordingStore
	characters *stubCharacters
}

func newFixture(t *testing.T, gen func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult) *fixture {
	t.Helper()
	opts := parser.DefaultOptions()
	opts.KnownNames = []string{"Jamie", "Kai"}
	sp, err := parser.NewStoryParser(opts)
	require.NoError(t, err)

	f := &fixture{
		generator: &fakeGenerator{fn: gen},
		store:     &recordingStore{MemoryComicStore: store.NewMemoryComicStore()},
		characters: &stubCharacters{chars: map[string]*domain.Character{
			"jamie": {ID: "jamie", Name: "Jamie", VisualCues: []string{"silver hair"}, ReferenceImage: []byte("ref")},
			"kai":   {ID: "kai", Name: "Kai"},
		}},
	}
	f.pipeline, err = NewComicPipeline(
		sp,
		prompts.NewEnhancer(nil, 0),
		f.generator,
		imgutil.NewNormalizer(0),
		NewAssembler(fixedClock, func() string { return "comic-1" }),
		f.store,
		f.characters,
		Options{Workers: 2},
	)
	require.NoError(t, err)
	return f
}

func TestCreateComic_PartialFailure(t *testing.T) {
	img := panelPNG(t)
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		if req.PanelIndex == 2 {
			return domain.FailedResult(2, domain.NewGenerationError(domain.ModerationRejected, errors.New("blocked")))
		}
		return domain.PanelResult{Index: req.PanelIndex, Image: img, MimeType: "image/png"}
	})

	comic, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: fourPanelStory, Title: "The Crystal"},
		Style:          "Celestial Ink",
		AspectRatio:    "1:1",
		GenerateImages: true,
	})
	require.NoError(t, err)

	require.Len(t, comic.Panels, 4)
	for i, p := range comic.Panels {
		assert.Equal(t, i+1, p.Index)
		if p.Index == 2 {
			assert.Nil(t, p.Image)
			assert.Equal(t, string(domain.ModerationRejected), p.Error)
			assert.NotEmpty(t, p.Scene, "失敗したコマも文章は保持する")
			continue
		}
		assert.Equal(t, img, p.Image)
		assert.Empty(t, p.Error)
	}
	assert.Equal(t, "The Crystal", comic.Title)
	assert.Equal(t, "Celestial Ink", comic.Style)
	assert.Equal(t, fixedClock(), comic.CreatedAt)

	assert.Equal(t, int32(1), f.store.saves.Load())
	saved, err := f.pipeline.GetComic(context.Background(), "comic-1")
	require.NoError(t, err)
	assert.Len(t, saved.Panels, 4)

	for _, req := range f.generator.Requests() {
		assert.Equal(t, 1024, req.Width)
		assert.Equal(t, prompts.SafetyNegativePrompt, req.NegativePrompt)
	}
}

func TestCreateComic_CharacterResolution(t *testing.T) {
	img := panelPNG(t)
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		return domain.PanelResult{Index: req.PanelIndex, Image: img}
	})

	_, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: fourPanelStory},
		GenerateImages: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.characters.lookups["jamie"], "同じキャラクターは1回だけ解決する")
	var withRef int
	for _, req := range f.generator.Requests() {
		if req.HasReference() {
			withRef++
			assert.Contains(t, req.PositivePrompt, "Jamie: silver hair")
		}
	}
	assert.Positive(t, withRef)
}

func TestCreateComic_LookupErrorIsNotFatal(t *testing.T) {
	img := panelPNG(t)
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		return domain.PanelResult{Index: req.PanelIndex, Image: img}
	})
	f.characters.err = map[string]error{"jamie": errors.New("storage offline")}

	comic, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: fourPanelStory},
		GenerateImages: true,
	})
	require.NoError(t, err)
	assert.Len(t, comic.Panels, 4)
	for _, req := range f.generator.Requests() {
		assert.False(t, req.HasReference())
	}
}

func TestCreateComic_WithoutImages(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		t.Error("画像生成は呼ばれないこと")
		return domain.SkippedResult(req.PanelIndex)
	})

	comic, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story: domain.Story{Text: fourPanelStory},
	})
	require.NoError(t, err)

	assert.Empty(t, f.generator.Requests())
	assert.Empty(t, f.characters.lookups)
	require.Len(t, comic.Panels, 4)
	for _, p := range comic.Panels {
		assert.Nil(t, p.Image)
		assert.Empty(t, p.Error)
	}
	assert.Equal(t, prompts.DefaultStyleName, comic.Style)
	assert.Equal(t, prompts.DefaultAspectRatio, comic.AspectRatio)
	assert.Equal(t, int32(1), f.store.saves.Load())
}

func TestCreateComic_TextUnaffectedByImageMode(t *testing.T) {
	img := panelPNG(t)
	newGen := func() func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		return func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
			return domain.PanelResult{Index: req.PanelIndex, Image: img, MimeType: "image/png"}
		}
	}

	withImages, err := newFixture(t, newGen()).pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: fourPanelStory},
		GenerateImages: true,
	})
	require.NoError(t, err)
	textOnly, err := newFixture(t, newGen()).pipeline.CreateComic(context.Background(), CreateRequest{
		Story: domain.Story{Text: fourPanelStory},
	})
	require.NoError(t, err)

	require.Len(t, textOnly.Panels, len(withImages.Panels))
	for i := range withImages.Panels {
		a, b := withImages.Panels[i], textOnly.Panels[i]
		assert.Equal(t, a.Index, b.Index)
		assert.Equal(t, a.Scene, b.Scene)
		assert.Equal(t, a.Dialogue, b.Dialogue)
		assert.Equal(t, a.CharacterActions, b.CharacterActions)
		assert.Equal(t, a.Mood, b.Mood)
		assert.True(t, a.HasImage())
		assert.False(t, b.HasImage())
	}
}

func TestCreateComic_RequiresGeneratorForImages(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.generator = nil

	_, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: fourPanelStory},
		GenerateImages: true,
	})
	assert.ErrorIs(t, err, ErrNoGenerator)
	assert.Zero(t, f.store.saves.Load(), "保存しないこと")

	comic, err := f.pipeline.CreateComic(context.Background(), CreateRequest{Story: domain.Story{Text: fourPanelStory}})
	require.NoError(t, err, "画像なしの作成は生成器なしでもできる")
	assert.Len(t, comic.Panels, 4)
}

func TestCreateComic_EmptyStory(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		t.Error("画像生成は呼ばれないこと")
		return domain.SkippedResult(req.PanelIndex)
	})

	_, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: "   \n  "},
		GenerateImages: true,
	})
	assert.ErrorIs(t, err, domain.ErrEmptyStory)
	assert.Zero(t, f.store.saves.Load())
}

func TestCreateComic_PersistenceFailure(t *testing.T) {
	img := panelPNG(t)
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		return domain.PanelResult{Index: req.PanelIndex, Image: img}
	})
	storeErr := errors.New("disk full")
	f.store.err = storeErr

	comic, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: fourPanelStory},
		GenerateImages: true,
	})
	assert.Nil(t, comic)
	var perr *domain.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "comic-1", perr.ComicID)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, int32(1), f.store.saves.Load(), "保存は1回だけ試みる")
}

func TestCreateComic_TimeoutStillPersists(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		<-ctx.Done()
		return domain.FailedResult(req.PanelIndex, domain.NewGenerationError(domain.Timeout, ctx.Err()))
	})

	start := time.Now()
	comic, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: fourPanelStory},
		GenerateImages: true,
		Timeout:        50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, comic.Panels, 4)
	for _, p := range comic.Panels {
		assert.Nil(t, p.Image)
		assert.Equal(t, string(domain.Timeout), p.Error)
	}
	saved, err := f.pipeline.GetComic(context.Background(), comic.ID)
	require.NoError(t, err)
	assert.Len(t, saved.Panels, 4)
}

func TestCreateComic_CallerDeadlineStillPersists(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		<-ctx.Done()
		return domain.FailedResult(req.PanelIndex, domain.NewGenerationError(domain.Timeout, ctx.Err()))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	comic, err := f.pipeline.CreateComic(ctx, CreateRequest{
		Story:          domain.Story{Text: fourPanelStory},
		GenerateImages: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.store.saves.Load())
	assert.Len(t, comic.Panels, 4)
}

func TestCreateComic_BoundedConcurrency(t *testing.T) {
	img := panelPNG(t)
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		time.Sleep(20 * time.Millisecond)
		return domain.PanelResult{Index: req.PanelIndex, Image: img}
	})

	_, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: fourPanelStory},
		GenerateImages: true,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, f.generator.peak.Load(), int32(2))
	assert.Len(t, f.generator.Requests(), 4)
}

func TestCreateComic_CompressionFailure(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req domain.GenerationRequest) domain.PanelResult {
		// 末尾バイトにコマ番号を埋め込み、正規化の失敗対象を識別する
		return domain.PanelResult{Index: req.PanelIndex, Image: []byte{0xff, byte(req.PanelIndex)}}
	})
	f.pipeline.normalizer = &failingNormalizer{
		inner:   passthroughNormalizer{},
		failFor: map[int]bool{3: true},
	}

	comic, err := f.pipeline.CreateComic(context.Background(), CreateRequest{
		Story:          domain.Story{Text: fourPanelStory},
		GenerateImages: true,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.CompressionFailed), comic.Panels[2].Error)
	assert.Nil(t, comic.Panels[2].Image)
	assert.NotNil(t, comic.Panels[0].Image)
}

type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(data []byte) (*imgutil.Normalized, error) {
	return &imgutil.Normalized{Data: data, MimeType: "image/jpeg"}, nil
}

func TestComicPipeline_ListAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.pipeline.CreateComic(ctx, CreateRequest{Story: domain.Story{Text: fourPanelStory}})
	require.NoError(t, err)

	list, err := f.pipeline.ListComics(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].PanelCount)

	require.NoError(t, f.pipeline.DeleteComic(ctx, "comic-1"))
	_, err = f.pipeline.GetComic(ctx, "comic-1")
	assert.ErrorIs(t, err, domain.ErrComicNotFound)
}

func TestNewComicPipeline_RequiresComponents(t *testing.T) {
	_, err := NewComicPipeline(nil, nil, nil, nil, nil, nil, nil, Options{})
	assert.Error(t, err)
}
