package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	rpdf "rsc.io/pdf"

	"github.com/voidcat/grant-discovery/internal/normalize"
)

var dateSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+20\d{2}\b`),
}

// extractPDFText renders a PDF to plain text. The upstream parser panics on
// malformed files, so the panic is converted to an error here.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// deadlineCandidatesFromText finds date snippets, parses each through the
// shared routine, and returns the parseable ones ordered soonest first.
func deadlineCandidatesFromText(text string) []string {
	type candidate struct {
		raw string
		at  time.Time
	}
	var found []candidate
	seen := make(map[string]bool)

	for _, expr := range dateSnippetRegexes {
		for _, token := range expr.FindAllString(text, -1) {
			token = strings.TrimSpace(token)
			if seen[token] {
				continue
			}
			seen[token] = true
			if t, err := normalize.ParseDeadline(token); err == nil {
				found = append(found, candidate{raw: token, at: t})
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })

	out := make([]string, 0, len(found))
	for _, c := range found {
		out = append(out, c.raw)
	}
	return out
}

// ExtractPDFDeadlines fetches a call document and returns the raw date
// snippets found in it, soonest first.
func ExtractPDFDeadlines(ctx context.Context, fetcher Fetcher, pdfURL string) ([]string, error) {
	doc, err := fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()

	content, err := io.ReadAll(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("pdf read failed: %w", err)
	}

	text, err := extractPDFText(content)
	if err != nil {
		return nil, fmt.Errorf("pdf text extraction failed: %w", err)
	}
	return deadlineCandidatesFromText(text), nil
}
