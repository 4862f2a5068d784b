package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	gtext "github.com/yuin/goldmark/text"

	apperrors "github.com/mirefly/ragdex/internal/pkg/errors"
)

type Config struct {
	MaxChunkSize int
	Overlap      int
}

func (c Config) validate() error {
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max chunk size must be positive", apperrors.ErrInvalid)
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxChunkSize {
		return fmt.Errorf("%w: overlap must be smaller than max chunk size", apperrors.ErrInvalid)
	}
	return nil
}

// Span is one chunk of the source text. Start/End are byte offsets into the
// original input, so Text == input[Start:End] always holds.
type Span struct {
	Ordinal int
	Text    string
	Start   int
	End     int
}

// Split cuts text into overlapping spans of at most MaxChunkSize bytes,
// preferring paragraph and sentence boundaries over hard cuts. Output is
// deterministic for identical input and config. Whitespace-only input
// yields no spans and no error.
func Split(text string, cfg Config) ([]Span, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return split(text, cfg, nil), nil
}

// SplitMarkdown is Split with markdown block ends (from a goldmark parse)
// as preferred cut points, so chunks do not straddle headings or fenced
// code blocks when the budget allows.
func SplitMarkdown(text string, cfg Config) ([]Span, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	source := []byte(text)
	doc := goldmark.New().Parser().Parse(gtext.NewReader(source))
	var bounds []int
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		lines := node.Lines()
		if lines == nil || lines.Len() == 0 {
			continue
		}
		stop := lines.At(lines.Len() - 1).Stop
		if stop > 0 && stop <= len(source) {
			bounds = append(bounds, stop)
		}
	}
	sort.Ints(bounds)
	return split(text, cfg, bounds), nil
}

func split(text string, cfg Config, bounds []int) []Span {
	var spans []Span
	start := 0
	for start < len(text) {
		end := start + cfg.MaxChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end, bounds)
		}
		spans = append(spans, Span{
			Ordinal: len(spans),
			Text:    text[start:end],
			Start:   start,
			End:     end,
		})
		if end >= len(text) {
			break
		}
		next := end - cfg.Overlap
		for next > 0 && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			// A short boundary-cut chunk can make the overlap step
			// non-advancing; drop the overlap for this step.
			next = end
		}
		start = next
	}
	return spans
}

// cutPoint picks where to end the chunk starting at start with byte budget
// up to limit. Preference order: supplied block boundary, paragraph break,
// sentence end, line break, word break, hard cut. Boundary search never
// goes below the window midpoint, so a pathological unit still consumes at
// least half the budget.
func cutPoint(text string, start, limit int, bounds []int) int {
	floor := start + (limit-start)/2

	if len(bounds) > 0 {
		i := sort.SearchInts(bounds, limit+1) - 1
		if i >= 0 && bounds[i] > floor && bounds[i] <= limit {
			return bounds[i]
		}
	}
	if i := strings.LastIndex(text[floor:limit], "\n\n"); i >= 0 {
		return floor + i + 2
	}
	for i := limit - 1; i >= floor; i-- {
		switch text[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	if i := strings.LastIndexByte(text[floor:limit], '\n'); i >= 0 {
		return floor + i + 1
	}
	if i := strings.LastIndexByte(text[floor:limit], ' '); i >= 0 {
		return floor + i + 1
	}
	for limit > start && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return limit
}
