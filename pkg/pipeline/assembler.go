package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// titleWords は題名が指定されなかった場合に最初のシーンから採る語数です。
const titleWords = 8

// Meta は漫画全体に付与する属性です。
type Meta struct {
	Title       string
	Style       string
	AspectRatio string
	StoryText   string
}

// Assembler は下書きコマと生成結果を結合して Comic を組み立てます。
type Assembler struct {
	now   func() time.Time
	newID func() string
}

// NewAssembler は Assembler を生成します。nil を渡した関数には既定の実装が使われます。
func NewAssembler(now func() time.Time, newID func() string) *Assembler {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Assembler{now: now, newID: newID}
}

// Assemble は各コマ番号がちょうど1回ずつ番号順に並んだ Comic を返します。
// 失敗またはスキップしたコマは文章を保持したまま画像なしになります。
// 番号の欠落や重複はプログラムの誤りとしてエラーを返します。
func (a *Assembler) Assemble(drafts []domain.DraftPanel, results []domain.PanelResult, meta Meta) (*domain.Comic, error) {
	n := len(drafts)
	sorted := make([]domain.DraftPanel, n)
	copy(sorted, drafts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for i, d := range sorted {
		if d.Index != i+1 {
			return nil, fmt.Errorf("コマ番号が連続していません: %d 番目が %d", i+1, d.Index)
		}
	}

	byIndex := make(map[int]domain.PanelResult, len(results))
	for _, r := range results {
		if r.Index < 1 || r.Index > n {
			return nil, fmt.Errorf("範囲外のコマ番号の結果です: %d", r.Index)
		}
		if _, dup := byIndex[r.Index]; dup {
			return nil, fmt.Errorf("コマ %d の結果が重複しています", r.Index)
		}
		byIndex[r.Index] = r
	}

	panels := make([]domain.ComicPanel, n)
	for i, d := range sorted {
		r, ok := byIndex[d.Index]
		if !ok {
			return nil, fmt.Errorf("コマ %d の結果がありません", d.Index)
		}
		panel := domain.ComicPanel{
			Index:            d.Index,
			Scene:            d.Scene,
			Dialogue:         d.Dialogue,
			CharacterActions: copyPtr(d.CharacterActions),
			Mood:             copyPtr(d.Mood),
		}
		switch {
		case r.Succeeded():
			panel.Image = r.Image
			panel.ImageMimeType = r.MimeType
		case r.Err != nil:
			panel.Error = string(r.Err.Kind)
		}
		panels[i] = panel
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = deriveTitle(sorted)
	}

	return &domain.Comic{
		ID:          a.newID(),
		Title:       title,
		Style:       meta.Style,
		AspectRatio: meta.AspectRatio,
		StoryText:   meta.StoryText,
		Panels:      panels,
		CreatedAt:   a.now().UTC(),
	}, nil
}

// deriveTitle は最初のシーンの冒頭から題名を作ります。
func deriveTitle(drafts []domain.DraftPanel) string {
	for _, d := range drafts {
		words := strings.Fields(strings.TrimRight(d.Scene, ".!?…"))
		if len(words) == 0 {
			continue
		}
		if len(words) > titleWords {
			return strings.Join(words[:titleWords], " ") + "…"
		}
		return strings.Join(words, " ")
	}
	return "Untitled"
}

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return domain.Ptr(*s)
}
