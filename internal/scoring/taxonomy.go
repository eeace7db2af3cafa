package scoring

import "strings"

// domainTaxonomy is the closed list of technical domains used for the
// technical alignment factor. Each domain carries the terms that signal it.
var domainTaxonomy = map[string][]string{
	"artificial intelligence": {"artificial intelligence", "machine learning", "deep learning", "neural network", "ai", "nlp", "computer vision"},
	"cybersecurity":           {"cybersecurity", "cyber security", "information security", "encryption", "threat detection", "network security"},
	"biotechnology":           {"biotechnology", "biotech", "genomics", "bioinformatics", "synthetic biology", "gene therapy"},
	"clean energy":            {"clean energy", "renewable energy", "solar", "wind power", "battery", "energy storage", "grid", "decarbonisation", "decarbonization"},
	"advanced manufacturing":  {"advanced manufacturing", "additive manufacturing", "3d printing", "robotics", "automation", "industry 4.0"},
	"space":                   {"space", "satellite", "orbital", "launch vehicle", "earth observation", "aerospace"},
	"quantum":                 {"quantum", "quantum computing", "quantum sensing", "qubit", "quantum communication"},
	"health":                  {"health", "medical", "clinical", "healthcare", "drug discovery", "diagnostics", "public health"},
	"agriculture":             {"agriculture", "agritech", "food security", "crop", "farming", "aquaculture"},
	"climate":                 {"climate", "climate change", "emissions", "carbon capture", "adaptation", "sustainability"},
}

// detectDomains returns which taxonomy domains appear in the given text.
func detectDomains(text string) map[string]bool {
	text = strings.ToLower(text)
	found := make(map[string]bool)
	for domain, terms := range domainTaxonomy {
		for _, term := range terms {
			if containsTerm(text, term) {
				found[domain] = true
				break
			}
		}
	}
	return found
}

// containsTerm matches a term at word boundaries so "ai" does not fire
// inside "maintain".
func containsTerm(text, term string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 'A' && b <= 'Z'
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"with": true, "will": true, "this": true, "that": true, "its": true,
}

// contentTerms tokenizes text into lowercase terms with stop words removed.
func contentTerms(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:()[]\"'!?")
		if len(tok) < 2 || stopWords[tok] {
			continue
		}
		terms[tok] = true
	}
	return terms
}
