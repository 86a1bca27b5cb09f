package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

func TestEnhancer_Build(t *testing.T) {
	e := NewEnhancer(nil, 0)
	panel := domain.DraftPanel{
		Index:      2,
		Scene:      "Jamie held a glowing crystal",
		Mood:       domain.Ptr("wondrous"),
		Characters: []string{"jamie"},
	}
	chars := []domain.Character{
		{ID: "c1", Name: "Jamie", VisualCues: []string{"short silver hair", "round glasses"}, ReferenceImage: []byte{1, 2}},
	}

	req := e.Build(panel, Format{Style: "celestial ink", AspectRatio: "16:9"}, chars)

	assert.Equal(t, 2, req.PanelIndex)
	assert.Equal(t, 1344, req.Width)
	assert.Equal(t, 768, req.Height)
	assert.Equal(t, "16:9", req.AspectRatio)
	assert.Equal(t, SafetyNegativePrompt, req.NegativePrompt)
	assert.True(t, strings.HasPrefix(req.PositivePrompt, "celestial ink illustration"))
	assert.Contains(t, req.PositivePrompt, "Jamie held a glowing crystal")
	assert.Contains(t, req.PositivePrompt, "wondrous mood")
	assert.Contains(t, req.PositivePrompt, "Jamie: short silver hair, round glasses, "+ModestyDescriptor)
	for _, motif := range motifPhrases {
		assert.NotContains(t, req.PositivePrompt, motif, "シーンに crystal があるのでモチーフは補わない")
	}

	require.True(t, req.HasReference())
	require.NotNil(t, req.ReferenceStrength)
	assert.Equal(t, DefaultReferenceStrength, *req.ReferenceStrength)
}

func TestEnhancer_BuildWithoutCharacters(t *testing.T) {
	e := NewEnhancer(nil, 0.7)
	panel := domain.DraftPanel{Index: 1, Scene: "A quiet road at dusk"}

	req := e.Build(panel, Format{Style: "unknown style", AspectRatio: "7:3"}, nil)

	assert.True(t, strings.HasPrefix(req.PositivePrompt, "mystical watercolor illustration"), "未知のスタイルはデフォルトに解決される")
	assert.NotContains(t, req.PositivePrompt, "mood", "ムードが無いコマには mood 語を入れない")
	assert.Equal(t, 896, req.Width)
	assert.Equal(t, 1152, req.Height)
	assert.False(t, req.HasReference())
	assert.Nil(t, req.ReferenceStrength)

	var motifs int
	for _, motif := range motifPhrases {
		if strings.Contains(req.PositivePrompt, motif) {
			motifs++
		}
	}
	assert.Equal(t, 1, motifs, "モチーフ語がないシーンには1つだけ補う")
}

func TestEnhancer_Deterministic(t *testing.T) {
	e := NewEnhancer(nil, 0)
	panel := domain.DraftPanel{Index: 3, Scene: "The gate creaked open", Mood: domain.Ptr("tense")}

	a := e.Build(panel, Format{AspectRatio: "1:1"}, nil)
	b := e.Build(panel, Format{AspectRatio: "1:1"}, nil)
	assert.Equal(t, a, b)
	assert.Positive(t, a.Seed)
	assert.LessOrEqual(t, a.Seed, int64(0x7fffffff))

	other := e.Build(domain.DraftPanel{Index: 4, Scene: panel.Scene}, Format{AspectRatio: "1:1"}, nil)
	assert.NotEqual(t, a.Seed, other.Seed)
}

func TestEnhancer_ReferenceFromFirstTaggedCharacterWithImage(t *testing.T) {
	e := NewEnhancer(nil, 0.95)
	panel := domain.DraftPanel{Index: 1, Scene: "two friends", Characters: []string{"ana", "ben"}}
	chars := []domain.Character{
		{Name: "Ben", ReferenceImage: []byte("ben")},
		{Name: "Ana"},
	}

	req := e.Build(panel, Format{}, chars)
	assert.Equal(t, []byte("ben"), req.ReferenceImage)
	require.NotNil(t, req.ReferenceStrength)
	assert.Equal(t, MaxReferenceStrength, *req.ReferenceStrength)
	assert.Less(t, strings.Index(req.PositivePrompt, "Ana:"), strings.Index(req.PositivePrompt, "Ben:"))
}

func TestClampReferenceStrength(t *testing.T) {
	tests := []struct {
		in   float32
		want float32
	}{
		{in: 0, want: DefaultReferenceStrength},
		{in: -1, want: DefaultReferenceStrength},
		{in: 0.3, want: MinReferenceStrength},
		{in: 0.75, want: 0.75},
		{in: 1.5, want: MaxReferenceStrength},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampReferenceStrength(tt.in))
	}
}

func TestResolveGeometry(t *testing.T) {
	tests := []struct {
		in         string
		wantWidth  int
		wantHeight int
		wantRatio  string
	}{
		{in: "1:1", wantWidth: 1024, wantHeight: 1024, wantRatio: "1:1"},
		{in: " 3x4 ", wantWidth: 896, wantHeight: 1152, wantRatio: "3:4"},
		{in: "9:16", wantWidth: 768, wantHeight: 1344, wantRatio: "9:16"},
		{in: "", wantWidth: 896, wantHeight: 1152, wantRatio: DefaultAspectRatio},
		{in: "21:9", wantWidth: 896, wantHeight: 1152, wantRatio: DefaultAspectRatio},
	}
	for _, tt := range tests {
		g := ResolveGeometry(tt.in)
		assert.Equal(t, tt.wantWidth, g.Width, tt.in)
		assert.Equal(t, tt.wantHeight, g.Height, tt.in)
		assert.Equal(t, tt.wantRatio, g.AspectRatio, tt.in)
	}
}

func TestEnhancer_MoodOnlyWhenPresent(t *testing.T) {
	e := NewEnhancer(nil, 0)

	tests := []struct {
		name string
		mood *string
		want string
	}{
		{"ムードなし", nil, ""},
		{"空のムード", domain.Ptr(""), ""},
		{"ムードあり", domain.Ptr("tense"), "tense mood"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := e.Build(domain.DraftPanel{Index: 1, Scene: "A quiet road at dusk", Mood: tt.mood}, Format{}, nil)
			if tt.want == "" {
				assert.NotContains(t, req.PositivePrompt, "mood")
				assert.NotContains(t, req.PositivePrompt, ", ,")
				return
			}
			assert.Contains(t, req.PositivePrompt, "A quiet road at dusk, "+tt.want)
		})
	}
}
