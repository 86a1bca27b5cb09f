package domain

import "time"

// Story は漫画化の入力となる物語テキストです。投入後は変更しません。
type Story struct {
	Text  string `json:"text"`
	Title string `json:"title"`
}

// DraftPanel は画像生成前のパネル構成です。
// CharacterActions と Mood は任意項目で、nil は「なし」を表します。
type DraftPanel struct {
	Index            int      `json:"index"` // 1始まりの連番
	Scene            string   `json:"scene"`
	Dialogue         string   `json:"dialogue"`
	CharacterActions *string  `json:"character_actions,omitempty"`
	Mood             *string  `json:"mood,omitempty"`
	Characters       []string `json:"characters,omitempty"` // タグ付けされたキャラクター名（小文字）
}

// ActionsText は CharacterActions を空文字列フォールバック付きで返します。
func (p DraftPanel) ActionsText() string {
	if p.CharacterActions == nil {
		return ""
	}
	return *p.CharacterActions
}

// MoodText は Mood を空文字列フォールバック付きで返します。
func (p DraftPanel) MoodText() string {
	if p.Mood == nil {
		return ""
	}
	return *p.Mood
}

// ComicPanel は完成した漫画の1コマです。画像生成に失敗またはスキップしたコマは Image が nil になります。
type ComicPanel struct {
	Index            int     `json:"index"`
	Scene            string  `json:"scene"`
	Dialogue         string  `json:"dialogue"`
	CharacterActions *string `json:"character_actions,omitempty"`
	Mood             *string `json:"mood,omitempty"`
	Image            []byte  `json:"image,omitempty"`
	ImageMimeType    string  `json:"image_mime_type,omitempty"`
	// Error はこのコマの画像生成失敗の種別です。成功・スキップ時は空です。
	Error string `json:"error,omitempty"`
}

// HasImage は画像を保持しているかを返します。
func (p ComicPanel) HasImage() bool {
	return len(p.Image) > 0
}

// Comic は永続化される漫画の成果物です。
type Comic struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Style       string       `json:"style"`
	AspectRatio string       `json:"aspect_ratio"`
	StoryText   string       `json:"story_text"`
	Panels      []ComicPanel `json:"panels"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Summary は一覧表示用の要約を返します。
func (c *Comic) Summary() ComicSummary {
	images := 0
	for _, p := range c.Panels {
		if p.HasImage() {
			images++
		}
	}
	return ComicSummary{
		ID:          c.ID,
		Title:       c.Title,
		Style:       c.Style,
		AspectRatio: c.AspectRatio,
		PanelCount:  len(c.Panels),
		ImageCount:  images,
		CreatedAt:   c.CreatedAt,
	}
}

// Clone は画像バイト列を含めたディープコピーを返します。
func (c *Comic) Clone() *Comic {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Panels = make([]ComicPanel, len(c.Panels))
	for i, p := range c.Panels {
		pc := p
		pc.CharacterActions = clonePtr(p.CharacterActions)
		pc.Mood = clonePtr(p.Mood)
		if p.Image != nil {
			pc.Image = append([]byte(nil), p.Image...)
		}
		cp.Panels[i] = pc
	}
	return &cp
}

// ComicSummary は list() が返す漫画の要約です。
type ComicSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Style       string    `json:"style"`
	AspectRatio string    `json:"aspect_ratio"`
	PanelCount  int       `json:"panel_count"`
	ImageCount  int       `json:"image_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ptr は任意項目用に値のポインタを返すヘルパーです。
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
