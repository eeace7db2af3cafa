package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var htmlPolicy = bluemonday.UGCPolicy()

// Space collapses runs of whitespace into single spaces and trims.
func Space(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ValidUTF8 drops invalid byte sequences that would break downstream storage.
func ValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

// SanitizeHTML strips scripts, iframes and unsafe attributes while keeping
// basic formatting markup.
func SanitizeHTML(s string) string {
	return htmlPolicy.Sanitize(s)
}

// HTMLToText renders an HTML fragment down to plain text. Falls back to the
// input unchanged when it does not parse as HTML.
func HTMLToText(s string) string {
	if !strings.Contains(s, "<") {
		return Space(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return Space(s)
	}
	doc.Find("script, style, noscript").Remove()
	return Space(doc.Text())
}

// Truncate cuts text at the last word boundary before max runes.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, " "); idx > max/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " .,;:") + "…"
}

// MergeUniqueFold appends items to dst, skipping case-insensitive duplicates.
func MergeUniqueFold(dst []string, items []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		k := strings.ToLower(strings.TrimSpace(v))
		if k != "" {
			seen[k] = struct{}{}
		}
	}
	for _, v := range items {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		dst = append(dst, v)
		seen[k] = struct{}{}
	}
	return dst
}

// SplitList turns a newline or bullet separated block into clean items.
func SplitList(block string) []string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	block = strings.ReplaceAll(block, "\r", "\n")

	var out []string
	for _, raw := range strings.Split(block, "\n") {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		s = strings.TrimLeft(s, " \t-*•–—")
		s = stripLeadingNumbering(s)
		s = Space(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return MergeUniqueFold(nil, out)
}

func stripLeadingNumbering(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) {
		return s
	}
	for i < len(s) {
		switch s[i] {
		case '.', ')', '-', ':', ' ', '\t':
			i++
		default:
			return strings.TrimSpace(s[i:])
		}
	}
	return strings.TrimSpace(s)
}

// TitleKey produces the dedup key form of a title or issuer: lowercased,
// punctuation stripped, whitespace collapsed.
func TitleKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(' ')
		default:
			// punctuation becomes a space so "AI-driven" and "AI driven" meet
			b.WriteRune(' ')
		}
	}
	return Space(b.String())
}
