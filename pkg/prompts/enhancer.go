package prompts

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

const (
	// SafetyNegativePrompt はすべての生成要求に付与される固定のネガティブプロンプトです。
	SafetyNegativePrompt = "nsfw, nudity, sexual content, revealing clothing, gore, blood, violence, weapons, " +
		"speech bubble, text, letters, watermark, signature, low quality, blurry, distorted, bad anatomy, extra limbs"

	// ModestyDescriptor はキャラクター描写に必ず添える服装指定です。
	ModestyDescriptor = "modestly dressed in layered, non-revealing clothing"

	DefaultReferenceStrength = float32(0.7)
	MinReferenceStrength     = float32(0.6)
	MaxReferenceStrength     = float32(0.85)
)

// motifVocabulary は世界観を保つためのモチーフ語です。
// シーンにいずれも含まれない場合、1つを決定論的に補います。
var motifVocabulary = []string{
	"moon", "lunar", "crescent", "crystal", "candle", "tarot", "sigil", "rune", "star", "celestial", "constellation",
}

var motifPhrases = []string{
	"a crescent moon in the sky",
	"softly glowing crystals",
	"flickering candlelight",
	"faint tarot card motifs",
	"glowing sigils in the air",
	"a scattering of stars",
	"a faint celestial constellation",
}

// Format は作品全体で共通の画風と比率です。
type Format struct {
	Style       string
	AspectRatio string
}

// Enhancer は下書きコマを画像生成要求に変換します。純粋関数として振る舞い、外部状態を参照しません。
type Enhancer struct {
	styles            *StyleCatalog
	referenceStrength float32
}

// NewEnhancer は新しい Enhancer を生成します。
// styles が nil の場合は組み込みプリセットを使い、referenceStrength は [0.6, 0.85] に丸められます。
func NewEnhancer(styles *StyleCatalog, referenceStrength float32) *Enhancer {
	if styles == nil {
		styles = NewStyleCatalog()
	}
	return &Enhancer{
		styles:            styles,
		referenceStrength: ClampReferenceStrength(referenceStrength),
	}
}

// Build は1コマ分の GenerationRequest を組み立てます。
func (e *Enhancer) Build(panel domain.DraftPanel, format Format, chars []domain.Character) domain.GenerationRequest {
	style, _ := e.styles.Resolve(format.Style)
	geo := ResolveGeometry(format.AspectRatio)
	tagged := taggedCharacters(panel, chars)

	parts := []string{style.Template}
	if scene := strings.TrimSpace(panel.Scene); scene != "" {
		parts = append(parts, scene)
	}
	if mood := strings.TrimSpace(panel.MoodText()); mood != "" {
		parts = append(parts, mood+" mood")
	}
	if motif := motifFor(panel.Scene); motif != "" {
		parts = append(parts, motif)
	}
	for _, c := range tagged {
		parts = append(parts, characterDescriptor(c))
	}

	req := domain.GenerationRequest{
		PanelIndex:     panel.Index,
		PositivePrompt: joinClean(parts),
		NegativePrompt: SafetyNegativePrompt,
		Width:          geo.Width,
		Height:         geo.Height,
		AspectRatio:    geo.AspectRatio,
		GuidanceScale:  style.GuidanceScale,
		Steps:          style.Steps,
		Seed:           PanelSeed(panel.Index, panel.Scene),
	}
	for _, c := range tagged {
		if c.HasReference() {
			strength := e.referenceStrength
			req.ReferenceImage = c.ReferenceImage
			req.ReferenceStrength = &strength
			break
		}
	}
	return req
}

// ClampReferenceStrength は参照画像の強度を許容範囲に収めます。0 以下はデフォルト値になります。
func ClampReferenceStrength(v float32) float32 {
	switch {
	case v <= 0:
		return DefaultReferenceStrength
	case v < MinReferenceStrength:
		return MinReferenceStrength
	case v > MaxReferenceStrength:
		return MaxReferenceStrength
	}
	return v
}

// PanelSeed はコマ番号とシーンから決定論的な正の31ビットシード値を生成します。
func PanelSeed(index int, scene string) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", index, scene)))
	seed := int64(binary.BigEndian.Uint32(sum[:4]) & 0x7fffffff)
	if seed == 0 {
		return 1
	}
	return seed
}

// taggedCharacters はコマにタグ付けされた順に、解決済みキャラクターを返します。
func taggedCharacters(panel domain.DraftPanel, chars []domain.Character) []domain.Character {
	if len(panel.Characters) == 0 || len(chars) == 0 {
		return nil
	}
	m := domain.BuildCharactersMap(chars)
	var out []domain.Character
	for _, tag := range panel.Characters {
		if c := m.Find(tag); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func characterDescriptor(c domain.Character) string {
	var cues []string
	for _, cue := range c.VisualCues {
		if s := strings.TrimSpace(cue); s != "" {
			cues = append(cues, s)
		}
	}
	cues = append(cues, ModestyDescriptor)
	return fmt.Sprintf("%s: %s", c.Name, strings.Join(cues, ", "))
}

// motifFor はシーンがモチーフ語を含まない場合に補うモチーフを返します。
func motifFor(scene string) string {
	lower := strings.ToLower(scene)
	for _, m := range motifVocabulary {
		if strings.Contains(lower, m) {
			return ""
		}
	}
	h := fnv.New32a()
	h.Write([]byte(scene))
	return motifPhrases[h.Sum32()%uint32(len(motifPhrases))]
}

func joinClean(parts []string) string {
	var clean []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			clean = append(clean, s)
		}
	}
	return strings.Join(clean, ", ")
}
