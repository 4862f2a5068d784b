package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/mirefly/ragdex/internal/pkg/errors"
)

func TestSplitConfigValidation(t *testing.T) {
	_, err := Split("some text", Config{MaxChunkSize: 0, Overlap: 0})
	require.ErrorIs(t, err, apperrors.ErrInvalid)

	_, err = Split("some text", Config{MaxChunkSize: 100, Overlap: 100})
	require.ErrorIs(t, err, apperrors.ErrInvalid)

	_, err = Split("some text", Config{MaxChunkSize: 100, Overlap: -1})
	require.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestSplitEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n\t"} {
		spans, err := Split(input, Config{MaxChunkSize: 100, Overlap: 10})
		require.NoError(t, err)
		require.Empty(t, spans)
	}
}

func TestSplitSingleChunk(t *testing.T) {
	text := "A short document."
	spans, err := Split(text, Config{MaxChunkSize: 200, Overlap: 20})
	require.NoError(t, err)
	require.Len(t, spans, 1)
	require.Equal(t, text, spans[0].Text)
	require.Equal(t, 0, spans[0].Start)
	require.Equal(t, len(text), spans[0].End)
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	cfg := Config{MaxChunkSize: 200, Overlap: 20}
	first, err := Split(text, cfg)
	require.NoError(t, err)
	second, err := Split(text, cfg)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSplitCoverageAndOverlap(t *testing.T) {
	text := strings.Repeat("Sentence one is here. Sentence two follows it! What about three? ", 30)
	cfg := Config{MaxChunkSize: 180, Overlap: 30}
	spans, err := Split(text, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, spans)

	require.Equal(t, 0, spans[0].Start)
	require.Equal(t, len(text), spans[len(spans)-1].End)
	for i, s := range spans {
		require.Equal(t, i, s.Ordinal)
		require.Equal(t, text[s.Start:s.End], s.Text)
		require.LessOrEqual(t, s.End-s.Start, cfg.MaxChunkSize)
		if i > 0 {
			prev := spans[i-1]
			// no gap: each span starts at or before the previous end
			require.LessOrEqual(t, s.Start, prev.End)
			require.Greater(t, s.End, prev.End)
		}
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	text := "A first sentence that runs on a while here. Then a second sentence follows it closely. End."
	spans, err := Split(text, Config{MaxChunkSize: 60, Overlap: 5})
	require.NoError(t, err)
	require.Greater(t, len(spans), 1)
	require.True(t, strings.HasSuffix(spans[0].Text, "."), "chunk should end at a sentence: %q", spans[0].Text)
}

func TestSplitHardCutLongUnit(t *testing.T) {
	// one giant "word" with no boundaries at all
	text := strings.Repeat("x", 950)
	spans, err := Split(text, Config{MaxChunkSize: 300, Overlap: 30})
	require.NoError(t, err)
	require.Greater(t, len(spans), 3)
	for _, s := range spans {
		require.LessOrEqual(t, len(s.Text), 300)
	}
	require.Equal(t, len(text), spans[len(spans)-1].End)
}

func TestSplitRuneSafeHardCut(t *testing.T) {
	text := strings.Repeat("日本語のテキスト", 100)
	spans, err := Split(text, Config{MaxChunkSize: 100, Overlap: 10})
	require.NoError(t, err)
	for _, s := range spans {
		require.True(t, strings.ToValidUTF8(s.Text, "") == s.Text, "span must not split a rune")
	}
}

func TestSplitThreeParagraphs(t *testing.T) {
	para1 := "The first paragraph talks about apples and how they grow in orchards across the country, covering harvest seasons and common cultivars in some detail."
	para2 := "The second paragraph is about contract law and the details of salary negotiation clauses, including when an employer may revise compensation terms midway."
	para3 := "The third paragraph returns to fruit, describing pears and the climates they prefer most, with notes on storage temperatures and typical shelf lives."
	text := para1 + "\n\n" + para2 + "\n\n" + para3

	spans, err := Split(text, Config{MaxChunkSize: 200, Overlap: 20})
	require.NoError(t, err)
	require.Len(t, spans, 3)
	require.Contains(t, spans[0].Text, "apples")
	require.Contains(t, spans[1].Text, "contract law")
	require.Contains(t, spans[2].Text, "pears")
	for i := 1; i < len(spans); i++ {
		require.LessOrEqual(t, spans[i].Start, spans[i-1].End)
	}
}

func TestSplitMarkdownBlockBoundaries(t *testing.T) {
	text := "# Title\n\nFirst block of prose that says something useful about the topic at hand.\n\n```go\nfunc main() {}\n```\n\nClosing prose block after the code fence with a final remark."
	spans, err := SplitMarkdown(text, Config{MaxChunkSize: 90, Overlap: 10})
	require.NoError(t, err)
	require.NotEmpty(t, spans)
	require.Equal(t, 0, spans[0].Start)
	require.Equal(t, len(text), spans[len(spans)-1].End)
	for _, s := range spans {
		require.Equal(t, text[s.Start:s.End], s.Text)
	}
}

func TestSplitMarkdownEmpty(t *testing.T) {
	spans, err := SplitMarkdown("", Config{MaxChunkSize: 100, Overlap: 0})
	require.NoError(t, err)
	require.Empty(t, spans)
}
