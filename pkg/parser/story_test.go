package parser

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

func newParser(t *testing.T, min, max int, names ...string) *StoryParser {
	t.Helper()
	opts := DefaultOptions()
	opts.MinPanels = min
	opts.MaxPanels = max
	opts.KnownNames = names
	p, err := NewStoryParser(opts)
	require.NoError(t, err)
	return p
}

func TestNewStoryParser_InvalidOptions(t *testing.T) {
	_, err := NewStoryParser(Options{MinPanels: 0, MaxPanels: 3})
	assert.Error(t, err)

	_, err = NewStoryParser(Options{MinPanels: 4, MaxPanels: 3})
	assert.Error(t, err)
}

func TestParse_EmptyStory(t *testing.T) {
	p := newParser(t, 3, 6)
	for _, text := range []string{"", "   ", "\n\n\t"} {
		_, err := p.Parse(domain.Story{Text: text})
		assert.ErrorIs(t, err, domain.ErrEmptyStory)
	}
}

func TestParse_CrystalScenario(t *testing.T) {
	p := newParser(t, 3, 6, "Jamie")
	panels, err := p.Parse(domain.Story{Text: `Jamie found a glowing crystal. "Look!" she said.`})
	require.NoError(t, err)
	require.Len(t, panels, 3)

	assert.Equal(t, "Jamie found a", panels[0].Scene)
	assert.Equal(t, "glowing crystal.", panels[1].Scene)
	assert.Equal(t, "wondrous", panels[1].MoodText())

	last := panels[2]
	assert.Equal(t, "Look!", last.Dialogue)
	assert.Equal(t, "Jamie said", last.ActionsText())
	assert.Equal(t, []string{"jamie"}, last.Characters)
	assert.Equal(t, "glowing crystal.", last.Scene, "帰属のみの地の文は直前のシーンを引き継ぐ")
}

func TestParse_BoundsAndDenseIndices(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&sb, "The moon rose over hill number %d. ", i)
	}

	tests := []struct {
		name string
		text string
		min  int
		max  int
	}{
		{name: "長い物語は最大数に統合", text: sb.String(), min: 3, max: 6},
		{name: "短い物語は最小数まで分割", text: "A lantern swayed in the quiet wind while the tower slept.", min: 4, max: 6},
		{name: "範囲内はそのまま", text: "One. Two words here. Three is here. Four too.", min: 2, max: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser(t, tt.min, tt.max)
			panels, err := p.Parse(domain.Story{Text: tt.text})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, len(panels), tt.min)
			assert.LessOrEqual(t, len(panels), tt.max)
			for i, panel := range panels {
				assert.Equal(t, i+1, panel.Index)
				assert.NotNil(t, panel.Mood)
			}
		})
	}
}

func TestParse_MergesExcessIntoLastPanel(t *testing.T) {
	p := newParser(t, 1, 3)
	panels, err := p.Parse(domain.Story{Text: "First. Second. Third. Fourth. Fifth."})
	require.NoError(t, err)
	require.Len(t, panels, 3)
	assert.Equal(t, "First.", panels[0].Scene)
	assert.Equal(t, "Second.", panels[1].Scene)
	assert.Equal(t, "Third. Fourth. Fifth.", panels[2].Scene)
}

func TestParse_Idempotent(t *testing.T) {
	text := "Mira lit a candle, and the tarot cards shivered.\n\n\"Who is there?\" Mira whispered. A shadow moved behind the curtain."
	p := newParser(t, 3, 6, "Mira")

	first, err := p.Parse(domain.Story{Text: text})
	require.NoError(t, err)
	second, err := p.Parse(domain.Story{Text: text})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParse_NoQuotesMeansNoDialogue(t *testing.T) {
	p := newParser(t, 3, 6)
	panels, err := p.Parse(domain.Story{Text: "The stars faded. The river sang softly. Morning came at last."})
	require.NoError(t, err)
	for _, panel := range panels {
		assert.Empty(t, panel.Dialogue)
	}
}

func TestParse_NeverSplitsInsideQuotes(t *testing.T) {
	p := newParser(t, 1, 6, "Kai")
	panels, err := p.Parse(domain.Story{Text: `"Wait. Stop. Listen," Kai whispered.`})
	require.NoError(t, err)
	require.Len(t, panels, 1)
	assert.Equal(t, "Wait. Stop. Listen,", panels[0].Dialogue)
	assert.Equal(t, "Kai whispered", panels[0].ActionsText())
}

func TestParse_SplitsAfterQuotedSentence(t *testing.T) {
	p := newParser(t, 1, 6)
	panels, err := p.Parse(domain.Story{Text: `"Run!" The door slammed shut.`})
	require.NoError(t, err)
	require.Len(t, panels, 2)
	assert.Equal(t, "Run!", panels[0].Dialogue)
	assert.Equal(t, "The door slammed shut.", panels[1].Scene)
}

func TestParse_Abbreviations(t *testing.T) {
	p := newParser(t, 1, 6)
	panels, err := p.Parse(domain.Story{Text: "Dr. Vale opened the gate. The garden waited."})
	require.NoError(t, err)
	require.Len(t, panels, 2)
	assert.Equal(t, "Dr. Vale opened the gate.", panels[0].Scene)
}

func TestParse_TruncatesLongScene(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("the enormous silver moon drifted ", 40)) + "."
	opts := DefaultOptions()
	opts.MinPanels = 1
	opts.MaxSceneLength = 80
	p, err := NewStoryParser(opts)
	require.NoError(t, err)

	panels, err := p.Parse(domain.Story{Text: long})
	require.NoError(t, err)
	require.Len(t, panels, 1)
	assert.LessOrEqual(t, utf8.RuneCountInString(panels[0].Scene), 80)
	assert.True(t, strings.HasSuffix(panels[0].Scene, "…"))
}

func TestParse_MoodAndCharacterOrder(t *testing.T) {
	p := newParser(t, 1, 6, "Luna", "Orion")
	panels, err := p.Parse(domain.Story{Text: `Orion laughed and Luna ran to the gate.`})
	require.NoError(t, err)
	require.Len(t, panels, 1)

	assert.Equal(t, "joyful", panels[0].MoodText())
	assert.Equal(t, "Orion laughed; Luna ran to the gate", panels[0].ActionsText())
	assert.Equal(t, []string{"orion", "luna"}, panels[0].Characters)
}

func TestParse_DefaultMood(t *testing.T) {
	p := newParser(t, 1, 6)
	panels, err := p.Parse(domain.Story{Text: "The table held three cups."})
	require.NoError(t, err)
	assert.Equal(t, DefaultMood, panels[0].MoodText())
}

func TestParse_ActionsBoundedLikeScene(t *testing.T) {
	opts := DefaultOptions()
	opts.MinPanels = 1
	opts.MaxPanels = 3
	opts.MaxSceneLength = 60
	opts.KnownNames = []string{"Jamie"}
	p, err := NewStoryParser(opts)
	require.NoError(t, err)

	panels, err := p.Parse(domain.Story{Text: strings.Repeat("Jamie walked and ", 300) + "stopped."})
	require.NoError(t, err)
	require.NotEmpty(t, panels)

	for _, panel := range panels {
		assert.LessOrEqual(t, utf8.RuneCountInString(panel.Scene), 60)
		actions := panel.ActionsText()
		assert.LessOrEqual(t, utf8.RuneCountInString(actions), 60)
		if actions != "" {
			assert.True(t, strings.HasPrefix(actions, "Jamie walked"))
			assert.False(t, strings.HasSuffix(actions, ";"), "句の途中で切らない")
		}
	}
}

func TestJoinPhrases(t *testing.T) {
	phrases := []string{"Jamie ran", "Kai laughed", "Luna waved"}

	assert.Equal(t, "Jamie ran; Kai laughed; Luna waved", joinPhrases(phrases, 400))
	assert.Equal(t, "Jamie ran; Kai laughed", joinPhrases(phrases, 25))
	assert.Equal(t, "Jamie…", joinPhrases([]string{"Jamie ran quickly"}, 7))
	assert.Empty(t, joinPhrases(nil, 10))
}
