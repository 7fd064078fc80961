// Package preprocess normalises text coming from retrievers and web search
// before it reaches a prompt.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reLineEnd  = regexp.MustCompile(` +\n`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
	reAnyWS    = regexp.MustCompile(`\s+`)

	replacer = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl",
		" ", " ", "​", "",
		"•", "-",
	)

	// boilerplate lines dropped from page text, matched case-insensitively
	noise = []string{
		"cookie", "privacy policy", "all rights reserved", "subscribe to our newsletter",
		"쿠키", "개인정보처리방침", "무단 전재", "구독하기",
	}
)

// CleanBasic turns tabs and stray carriage returns into spaces, removes other
// control characters and ligatures, collapses runs of spaces and limits blank
// lines to one.
func CleanBasic(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	b := strings.Map(func(r rune) rune {
		switch r {
		case '\n':
			return r
		case '\t', '\r', '\v', '\f':
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	b = replacer.Replace(b)
	b = reSpaces.ReplaceAllString(b, " ")
	b = reLineEnd.ReplaceAllString(b, "\n")
	b = reNewlines.ReplaceAllString(b, "\n\n")
	return strings.TrimSpace(b)
}

// Snippet flattens a search snippet that may carry inline markup or entities
// (`<b>tax</b> &amp; VAT`) into one line of plain text.
func Snippet(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	plain := text
	if strings.ContainsAny(text, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err == nil {
			plain = doc.Text()
		}
	}
	return strings.TrimSpace(reAnyWS.ReplaceAllString(replacer.Replace(plain), " "))
}

// HTMLToText keeps headings, paragraphs, list items, code and tables of an
// HTML page as markdown-ish text.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script,style,nav,footer").Remove()

	var out []string
	doc.Find("h1,h2,h3,p,li,pre,table").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+text)
		case "h2":
			out = append(out, "## "+text)
		case "h3":
			out = append(out, "### "+text)
		case "li":
			out = append(out, "- "+text)
		case "pre":
			out = append(out, "```\n"+text+"\n```")
		case "table":
			out = append(out, tableRows(s))
		default:
			out = append(out, text)
		}
	})
	return strings.Join(out, "\n\n"), nil
}

func tableRows(sel *goquery.Selection) string {
	var rows []string
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(_ int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, "| "+strings.Join(cols, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}

// dedupeParagraphs drops exact repeats of a paragraph.
func dedupeParagraphs(text string) string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

func dropNoise(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		skip := false
		for _, p := range noise {
			if strings.Contains(lower, p) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Passage prepares retrieved document text for a prompt.
func Passage(raw string) string {
	return dedupeParagraphs(dropNoise(CleanBasic(raw)))
}
