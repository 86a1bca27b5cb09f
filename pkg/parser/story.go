package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

const (
	DefaultMinPanels      = 3
	DefaultMaxPanels      = 6
	DefaultMaxSceneLength = 400
)

// Options は StoryParser の動作設定です。
type Options struct {
	MinPanels      int
	MaxPanels      int
	MaxSceneLength int      // シーン文の最大ルーン数
	KnownNames     []string // タグ付け対象のキャラクター名
}

// DefaultOptions は推奨されるデフォルト設定を返します。
func DefaultOptions() Options {
	return Options{
		MinPanels:      DefaultMinPanels,
		MaxPanels:      DefaultMaxPanels,
		MaxSceneLength: DefaultMaxSceneLength,
	}
}

// Parser は物語テキストをコマ割りするためのインターフェースです。
type Parser interface {
	Parse(story domain.Story) ([]domain.DraftPanel, error)
}

type knownName struct {
	display string
	lower   string
	tokens  []string
	re      *regexp.Regexp
}

// StoryParser は自由記述の物語を、シーン・セリフ・動作・ムードを持つ下書きコマ列に変換します。
// 乱数や外部状態を使わないため、同じ入力からは常に同じコマ列が得られます。
type StoryParser struct {
	opts  Options
	names []knownName
}

// NewStoryParser は設定を検証して StoryParser を生成します。
func NewStoryParser(opts Options) (*StoryParser, error) {
	if opts.MinPanels < 1 {
		return nil, fmt.Errorf("MinPanels は1以上である必要があります: %d", opts.MinPanels)
	}
	if opts.MaxPanels < opts.MinPanels {
		return nil, fmt.Errorf("MaxPanels (%d) は MinPanels (%d) 以上である必要があります", opts.MaxPanels, opts.MinPanels)
	}
	if opts.MaxSceneLength <= 0 {
		opts.MaxSceneLength = DefaultMaxSceneLength
	}

	seen := make(map[string]struct{}, len(opts.KnownNames))
	names := make([]knownName, 0, len(opts.KnownNames))
	for _, n := range opts.KnownNames {
		display := strings.TrimSpace(n)
		lower := domain.NormalizeName(display)
		if lower == "" {
			continue
		}
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		names = append(names, knownName{
			display: display,
			lower:   lower,
			tokens:  strings.Fields(lower),
			re:      nameRegex(lower),
		})
	}
	// 複数語の名前を先に照合する ("Mary Ann" を "Mary" より優先)
	sort.SliceStable(names, func(i, j int) bool {
		if len(names[i].tokens) != len(names[j].tokens) {
			return len(names[i].tokens) > len(names[j].tokens)
		}
		return names[i].lower < names[j].lower
	})

	return &StoryParser{opts: opts, names: names}, nil
}

// Parse は物語を文単位に分割し、コマ数が [MinPanels, MaxPanels] に収まるよう分割・統合してから各コマを構築します。
func (p *StoryParser) Parse(story domain.Story) ([]domain.DraftPanel, error) {
	text := strings.TrimSpace(story.Text)
	if text == "" {
		return nil, domain.ErrEmptyStory
	}

	units := segment(text)
	if len(units) == 0 {
		return nil, domain.ErrEmptyStory
	}
	units = fitUnits(units, p.opts.MinPanels, p.opts.MaxPanels)
	if len(units) < p.opts.MinPanels {
		slog.Warn("物語が短すぎるため最小コマ数に届きませんでした",
			"title", story.Title, "panels", len(units), "min_panels", p.opts.MinPanels)
	}

	panels := p.buildPanels(units)
	slog.Debug("物語をコマ割りしました", "title", story.Title, "panels", len(panels))
	return panels, nil
}

// segment は段落、続いて文の境界でテキストを分割します。
func segment(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var units []string
	for _, para := range ParagraphRegex.Split(text, -1) {
		para = collapse(para)
		if para == "" {
			continue
		}
		units = append(units, splitSentences(para)...)
	}
	return units
}

// splitSentences は引用符の内側を除いて文末記号で段落を分割します。
func splitSentences(para string) []string {
	runes := []rune(para)
	var out []string
	start := 0
	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}

	inQuote := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case isQuote(r):
			if r == '“' || (r == '"' && !inQuote) {
				inQuote = true
				continue
			}
			inQuote = false
			// 終止符で終わるセリフの後に大文字で始まる文が続く場合はそこで区切る
			if i > 0 && isTerminator(runes[i-1]) && nextStartsUpper(runes, i+1) {
				emit(i + 1)
			}
		case inQuote:
			continue
		case isTerminator(r):
			j := i + 1
			for j < len(runes) && isTerminator(runes[j]) {
				j++
			}
			if j < len(runes) && !unicode.IsSpace(runes[j]) {
				i = j - 1
				continue
			}
			if r == '.' && endsWithAbbreviation(runes[start:i]) {
				i = j - 1
				continue
			}
			emit(j)
			i = j - 1
		}
	}
	emit(len(runes))
	return out
}

// fitUnits は単位数を [minPanels, maxPanels] に合わせます。
// 不足時は最長の単位を節境界（なければ語境界）で分割し、超過時は末尾の余剰を最終コマに統合します。
func fitUnits(units []string, minPanels, maxPanels int) []string {
	for len(units) < minPanels {
		idx, longest := -1, -1
		var left, right string
		for i, u := range units {
			l, r, ok := splitUnit(u)
			if !ok {
				continue
			}
			if n := utf8.RuneCountInString(u); n > longest {
				idx, longest, left, right = i, n, l, r
			}
		}
		if idx < 0 {
			break
		}
		next := make([]string, 0, len(units)+1)
		next = append(next, units[:idx]...)
		next = append(next, left, right)
		next = append(next, units[idx+1:]...)
		units = next
	}

	if len(units) > maxPanels {
		tail := strings.Join(units[maxPanels-1:], " ")
		units = append(units[:maxPanels-1:maxPanels-1], tail)
	}
	return units
}

// splitUnit は引用符の外側で、中央に最も近い節境界または語境界で単位を2つに分けます。
func splitUnit(u string) (string, string, bool) {
	runes := []rune(u)
	quoted := quoteMask(runes)
	mid := len(runes) / 2

	for _, candidates := range [][]int{clauseBoundaries(runes, quoted), wordBoundaries(runes, quoted)} {
		pos := nearest(candidates, mid)
		if pos < 0 {
			continue
		}
		left := strings.TrimRight(string(runes[:pos]), " ,;:—")
		right := strings.TrimLeft(string(runes[pos:]), " ,;:—")
		if hasWord(left) && hasWord(right) {
			return left, right, true
		}
	}
	return "", "", false
}

func clauseBoundaries(runes []rune, quoted []bool) []int {
	var out []int
	for i := 1; i < len(runes); i++ {
		if quoted[i-1] || quoted[i] {
			continue
		}
		if strings.ContainsRune(",;:—", runes[i-1]) {
			out = append(out, i)
			continue
		}
		if runes[i-1] == ' ' {
			if _, ok := clauseConjunctions[leadingWord(runes[i:])]; ok {
				out = append(out, i)
			}
		}
	}
	return out
}

func wordBoundaries(runes []rune, quoted []bool) []int {
	var out []int
	for i, r := range runes {
		if r == ' ' && !quoted[i] {
			out = append(out, i)
		}
	}
	return out
}

// nearest は mid に最も近い位置を返します。同距離なら前方を優先します。
func nearest(positions []int, mid int) int {
	best, bestDist := -1, -1
	for _, p := range positions {
		d := p - mid
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// quoteMask は各ルーンが引用符の内側（引用符自体を含む）にあるかを返します。
func quoteMask(runes []rune) []bool {
	mask := make([]bool, len(runes))
	inQuote := false
	for i, r := range runes {
		if isQuote(r) {
			mask[i] = true
			inQuote = r == '“' || (r == '"' && !inQuote)
			continue
		}
		mask[i] = inQuote
	}
	return mask
}

func (p *StoryParser) buildPanels(units []string) []domain.DraftPanel {
	panels := make([]domain.DraftPanel, 0, len(units))
	var lastName *knownName
	lastScene := ""

	for i, unit := range units {
		dialogue := extractDialogue(unit)
		prose := collapse(QuoteRegex.ReplaceAllString(unit, " "))

		var actions string
		actions, lastName = p.extractActions(prose, lastName)

		scene := strings.Trim(prose, " ,;:—")
		if !hasWord(scene) || isAttributionOnly(scene) {
			scene = lastScene
		}
		scene = truncateRunes(scene, p.opts.MaxSceneLength)
		if scene != "" {
			lastScene = scene
		}

		panel := domain.DraftPanel{
			Index:      i + 1,
			Scene:      scene,
			Dialogue:   dialogue,
			Mood:       domain.Ptr(detectMood(unit)),
			Characters: p.tagCharacters(actions, dialogue),
		}
		if actions != "" {
			panel.CharacterActions = domain.Ptr(actions)
		}
		panels = append(panels, panel)
	}
	return panels
}

// extractDialogue は引用符内の文字列を出現順に連結します。
func extractDialogue(unit string) string {
	var parts []string
	for _, m := range QuoteRegex.FindAllStringSubmatch(unit, -1) {
		s := m[1]
		if s == "" {
			s = m[2]
		}
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// extractActions は「名前（または代名詞）+ 動作動詞」で始まる句を抽出します。
// 代名詞は直前に言及されたキャラクターに解決され、その状態はコマをまたいで引き継がれます。
func (p *StoryParser) extractActions(prose string, lastName *knownName) (string, *knownName) {
	tokens := strings.Fields(prose)
	var phrases []string

	for i := 0; i < len(tokens); i++ {
		var subject *knownName
		width := 1
		if name, w := p.matchName(tokens, i); name != nil {
			subject, width = name, w
			lastName = name
		} else if _, ok := pronouns[normalizeToken(tokens[i])]; ok && lastName != nil {
			subject = lastName
		}
		if subject == nil {
			continue
		}

		verbAt := i + width
		if endsClause(tokens[verbAt-1]) || verbAt >= len(tokens) || !isActionVerb(normalizeToken(tokens[verbAt])) {
			i = verbAt - 1
			continue
		}

		phrase := []string{subject.display}
		for k := verbAt; k < len(tokens) && len(phrase) < maxActionWords; k++ {
			if _, ok := clauseConjunctions[normalizeToken(tokens[k])]; ok && k > verbAt {
				break
			}
			phrase = append(phrase, strings.TrimRight(tokens[k], ",;:.!?…—"))
			if endsClause(tokens[k]) {
				break
			}
		}
		phrases = append(phrases, strings.Join(phrase, " "))
		i = verbAt
	}
	return joinPhrases(phrases, p.opts.MaxSceneLength), lastName
}

// joinPhrases は動作句を "; " で連結します。シーンと同じ上限を超える句は句単位で切り捨てます。
func joinPhrases(phrases []string, max int) string {
	var sb strings.Builder
	n := 0
	for _, ph := range phrases {
		sep := 0
		if n > 0 {
			sep = 2
		}
		size := utf8.RuneCountInString(ph)
		if n+sep+size > max {
			if n == 0 {
				return truncateRunes(ph, max)
			}
			break
		}
		if sep > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(ph)
		n += sep + size
	}
	return sb.String()
}

func (p *StoryParser) matchName(tokens []string, i int) (*knownName, int) {
	for idx := range p.names {
		k := &p.names[idx]
		if i+len(k.tokens) > len(tokens) {
			continue
		}
		matched := true
		for j, want := range k.tokens {
			if normalizeToken(tokens[i+j]) != want {
				matched = false
				break
			}
		}
		if matched {
			return k, len(k.tokens)
		}
	}
	return nil, 0
}

// tagCharacters はセリフまたは動作句に現れる既知の名前を、初出順に小文字で返します。
func (p *StoryParser) tagCharacters(actions, dialogue string) []string {
	text := actions + "\n" + dialogue
	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, k := range p.names {
		if loc := k.re.FindStringIndex(text); loc != nil {
			hits = append(hits, hit{pos: loc[0], name: k.lower})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].name < hits[j].name
	})
	tags := make([]string, len(hits))
	for i, h := range hits {
		tags[i] = h.name
	}
	return tags
}

// detectMood は単位内で最初に現れた感情語のムードを返します。
func detectMood(unit string) string {
	for _, tok := range strings.Fields(unit) {
		w := normalizeToken(tok)
		for _, m := range moodVocabulary {
			if m.matches(w) {
				return m.label
			}
		}
	}
	return DefaultMood
}

// isAttributionOnly は "she said." のような発話の帰属だけで構成された地の文かを判定します。
func isAttributionOnly(prose string) bool {
	words := strings.Fields(prose)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		if _, ok := speechVerbs[normalizeToken(w)]; ok {
			return true
		}
	}
	return false
}

func isActionVerb(w string) bool {
	if _, ok := actionVerbs[w]; ok {
		return true
	}
	return len(w) > 4 && strings.HasSuffix(w, "ed")
}

// normalizeToken は前後の記号を除去して小文字化し、所有格の 's を取り除きます。
func normalizeToken(tok string) string {
	w := strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
	w = strings.TrimSuffix(w, "'s")
	return strings.TrimSuffix(w, "’s")
}

func endsClause(tok string) bool {
	r, _ := utf8.DecodeLastRuneInString(strings.TrimRight(tok, `"”'`))
	return strings.ContainsRune(",;:.!?…—", r)
}

func leadingWord(runes []rune) string {
	end := 0
	for end < len(runes) && unicode.IsLetter(runes[end]) {
		end++
	}
	return strings.ToLower(string(runes[:end]))
}

func endsWithAbbreviation(prefix []rune) bool {
	fields := strings.Fields(string(prefix))
	if len(fields) == 0 {
		return false
	}
	_, ok := abbreviations[normalizeToken(fields[len(fields)-1])]
	return ok
}

func nextStartsUpper(runes []rune, from int) bool {
	k := from
	for k < len(runes) && unicode.IsSpace(runes[k]) {
		k++
	}
	return k > from && k < len(runes) && unicode.IsUpper(runes[k])
}

func isQuote(r rune) bool {
	return r == '"' || r == '“' || r == '”'
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func hasWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.TrimSpace(SpaceRegex.ReplaceAllString(s, " "))
}

// truncateRunes は max ルーンを超える文字列を語境界で切り詰め、末尾に "…" を付けます。
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := runes[:max-1]
	if idx := lastSpace(cut); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(string(cut)) + "…"
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}
