// Package markdown chunks markdown documents along their heading structure.
package markdown

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sweetpotato0/askflow/rag/chunking"
	"github.com/sweetpotato0/askflow/rag/document"
)

// Chunker splits markdown documents by heading using a goldmark AST. Each
// chunk is prefixed with its heading path ("Civil Act > Leases") so a passage
// read on its own still names its section.
type Chunker struct {
	maxHeadingLevel int
	maxRunes        int
	minRunes        int
	fallback        *chunking.SimpleChunker
	parser          goldmark.Markdown
}

// Option customises the markdown chunker.
type Option func(*Chunker)

// WithMaxHeadingLevel caps which heading level starts a new chunk (default 3).
func WithMaxHeadingLevel(level int) Option {
	return func(c *Chunker) {
		if level > 0 {
			c.maxHeadingLevel = level
		}
	}
}

// WithMaxRunes bounds a section before it is windowed (default 1200).
func WithMaxRunes(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxRunes = n
		}
	}
}

// WithMinRunes merges sections shorter than n into the next one (default 200).
func WithMinRunes(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minRunes = n
		}
	}
}

// New creates a markdown chunker.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxHeadingLevel: 3,
		maxRunes:        1200,
		minRunes:        200,
		parser:          goldmark.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.fallback = chunking.NewSimpleChunker(chunking.WithChunkSize(c.maxRunes), chunking.WithOverlap(c.maxRunes/8))
	return c
}

var _ chunking.Chunker = (*Chunker)(nil)

type section struct {
	path string
	body string
}

// Chunk implements chunking.Chunker.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	document.EnsureID(&doc)

	var pieces []string
	for _, sec := range c.mergeShort(c.sections(doc.Content)) {
		text := sec.body
		if sec.path != "" {
			text = sec.path + "\n\n" + sec.body
		}
		if utf8.RuneCountInString(text) <= c.maxRunes {
			pieces = append(pieces, text)
			continue
		}
		windows, err := c.fallback.Chunk(ctx, document.Document{ID: doc.ID, Content: sec.body})
		if err != nil {
			return nil, err
		}
		for _, w := range windows {
			if sec.path != "" {
				pieces = append(pieces, sec.path+"\n\n"+w.Content)
				continue
			}
			pieces = append(pieces, w.Content)
		}
	}
	return chunking.Build(doc, pieces), nil
}

type heading struct {
	start, end int // byte span of the heading line
	level      int
	title      string
}

func (c *Chunker) sections(content string) []section {
	source := []byte(content)
	root := c.parser.Parser().Parse(text.NewReader(source))

	var headings []heading
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > c.maxHeadingLevel {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		seg := lines.At(0)
		start := lineStart(source, seg.Start)
		end := lineEnd(source, seg.Stop)
		headings = append(headings, heading{
			start: start,
			end:   end,
			level: h.Level,
			title: strings.TrimSpace(string(source[seg.Start:seg.Stop])),
		})
		return ast.WalkSkipChildren, nil
	})

	if len(headings) == 0 {
		if body := strings.TrimSpace(content); body != "" {
			return []section{{body: body}}
		}
		return nil
	}

	var out []section
	if intro := strings.TrimSpace(string(source[:headings[0].start])); intro != "" {
		out = append(out, section{body: intro})
	}
	trail := make([]string, c.maxHeadingLevel)
	for i, h := range headings {
		trail[h.level-1] = h.title
		clear(trail[h.level:])

		stop := len(source)
		if i+1 < len(headings) {
			stop = headings[i+1].start
		}
		body := strings.TrimSpace(string(source[h.end:stop]))
		if body == "" {
			continue
		}
		out = append(out, section{path: joinPath(trail[:h.level]), body: body})
	}
	return out
}

// mergeShort folds a short section into its successor, keeping the
// successor's path and the short section's text as a lead-in.
func (c *Chunker) mergeShort(sections []section) []section {
	if c.minRunes <= 0 {
		return sections
	}
	var (
		out     []section
		pending string
	)
	for i, sec := range sections {
		if pending != "" {
			sec.body = pending + "\n\n" + sec.body
			pending = ""
		}
		if utf8.RuneCountInString(sec.body) < c.minRunes && i < len(sections)-1 {
			if sec.path != "" {
				pending = sec.path + "\n\n" + sec.body
			} else {
				pending = sec.body
			}
			continue
		}
		out = append(out, sec)
	}
	return out
}

func joinPath(titles []string) string {
	parts := make([]string, 0, len(titles))
	for _, t := range titles {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " > ")
}

func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

func lineEnd(src []byte, pos int) int {
	for pos < len(src) && src[pos] != '\n' {
		pos++
	}
	return pos
}
