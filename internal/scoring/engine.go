// Package scoring ranks canonical records against a free-text query or an
// organizational profile using four weighted factors.
package scoring

import (
	"strings"

	"github.com/voidcat/grant-discovery/internal/models"
)

// Factor weights. They sum to 1.
const (
	weightTechnical  = 0.40
	weightCapability = 0.30
	weightExperience = 0.20
	weightKeyword    = 0.10

	// neutralScore is returned for an empty query: "no query" means
	// "browse all", not "no match".
	neutralScore = 0.75
)

// Profile describes the applicant organization.
type Profile struct {
	Capabilities   []string `json:"capabilities"`
	YearsActive    int      `json:"years_active"`
	PriorProjects  int      `json:"prior_projects"`
	Certifications []string `json:"certifications"`
}

// Query is what a record is scored against: free text, an optional profile,
// or both.
type Query struct {
	Text    string
	Profile *Profile
}

// IsEmpty reports whether the query carries no signal at all.
func (q *Query) IsEmpty() bool {
	if q == nil {
		return true
	}
	return strings.TrimSpace(q.Text) == "" && (q.Profile == nil || len(q.Profile.Capabilities) == 0 && q.Profile.YearsActive == 0 && q.Profile.PriorProjects == 0 && len(q.Profile.Certifications) == 0)
}

// Factors is the per-factor breakdown of a match score.
type Factors struct {
	TechnicalAlignment float64 `json:"technical_alignment"`
	CapabilityMatch    float64 `json:"capability_match"`
	ExperienceMatch    float64 `json:"experience_match"`
	KeywordAlignment   float64 `json:"keyword_alignment"`
}

// MatchScore is the derived relevance of one record for one query.
type MatchScore struct {
	Overall    float64 `json:"overall"`
	Factors    Factors `json:"factors"`
	Confidence string  `json:"confidence"` // high, medium, low
}

// Score computes the weighted match of record against q. A nil record
// scores 0; an empty query scores the neutral default. Missing record
// fields degrade individual factors, never panic.
func Score(record *models.CanonicalRecord, q *Query) MatchScore {
	if record == nil {
		return MatchScore{Overall: 0, Confidence: "low"}
	}
	if q.IsEmpty() {
		return MatchScore{
			Overall: neutralScore,
			Factors: Factors{
				TechnicalAlignment: neutralScore,
				CapabilityMatch:    neutralScore,
				ExperienceMatch:    neutralScore,
				KeywordAlignment:   neutralScore,
			},
			Confidence: "high",
		}
	}

	recordText := recordText(record)
	f := Factors{
		TechnicalAlignment: technicalAlignment(recordText, q),
		CapabilityMatch:    capabilityMatch(record, q.Profile),
		ExperienceMatch:    experienceMatch(record, q.Profile),
		KeywordAlignment:   keywordAlignment(recordText, q.Text),
	}

	overall := weightTechnical*f.TechnicalAlignment +
		weightCapability*f.CapabilityMatch +
		weightExperience*f.ExperienceMatch +
		weightKeyword*f.KeywordAlignment

	return MatchScore{
		Overall:    clamp01(overall),
		Factors:    f,
		Confidence: confidence(f),
	}
}

func recordText(record *models.CanonicalRecord) string {
	parts := []string{record.Title, record.Description, record.Program}
	parts = append(parts, record.Tags...)
	return strings.Join(parts, " ")
}

// technicalAlignment measures domain overlap between the query side (text
// plus declared capabilities) and the record text against the fixed
// taxonomy.
func technicalAlignment(recordText string, q *Query) float64 {
	queryText := q.Text
	if q.Profile != nil {
		queryText += " " + strings.Join(q.Profile.Capabilities, " ")
	}
	queryDomains := detectDomains(queryText)
	if len(queryDomains) == 0 {
		return 0
	}
	recordDomains := detectDomains(recordText)
	matched := 0
	for domain := range queryDomains {
		if recordDomains[domain] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryDomains))
}

// capabilityMatch is the fraction of declared capabilities that appear in
// the record's eligibility and description text. No declared capabilities
// yields the neutral midpoint.
func capabilityMatch(record *models.CanonicalRecord, profile *Profile) float64 {
	if profile == nil || len(profile.Capabilities) == 0 {
		return 0.5
	}
	haystack := strings.ToLower(record.Description + " " + strings.Join(record.Eligibility, " ") + " " + record.Title)
	if strings.TrimSpace(haystack) == "" {
		return 0
	}
	matched := 0
	for _, capability := range profile.Capabilities {
		capTerms := contentTerms(capability)
		if len(capTerms) == 0 {
			continue
		}
		hits := 0
		for term := range capTerms {
			if containsTerm(haystack, term) {
				hits++
			}
		}
		if hits*2 >= len(capTerms) {
			matched++
		}
	}
	return float64(matched) / float64(len(profile.Capabilities))
}

// programThresholds returns the years-active and prior-project counts a
// program type implies for a competitive applicant.
func programThresholds(programType string) (years, projects int) {
	switch strings.ToLower(programType) {
	case "tender":
		return 5, 3
	case "cooperative agreement":
		return 4, 3
	default:
		return 3, 2
	}
}

// experienceMatch compares profile track record to what the program type
// implies. Absent profile data yields a neutral mid-range score.
func experienceMatch(record *models.CanonicalRecord, profile *Profile) float64 {
	if profile == nil || (profile.YearsActive == 0 && profile.PriorProjects == 0 && len(profile.Certifications) == 0) {
		return 0.5
	}
	reqYears, reqProjects := programThresholds(record.ProgramType)

	yearsScore := clamp01(float64(profile.YearsActive) / float64(reqYears))
	projectScore := clamp01(float64(profile.PriorProjects) / float64(reqProjects))
	certScore := clamp01(float64(len(profile.Certifications)) / 2.0)

	return clamp01(0.5*yearsScore + 0.3*projectScore + 0.2*certScore)
}

// keywordAlignment is the stop-word-filtered term overlap between the query
// text and the record text.
func keywordAlignment(recordText, queryText string) float64 {
	queryTerms := contentTerms(queryText)
	if len(queryTerms) == 0 {
		return 0
	}
	recordTerms := contentTerms(recordText)
	matched := 0
	for term := range queryTerms {
		if recordTerms[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// confidence labels how much the four factors agree. Low variance means
// the signals point the same way.
func confidence(f Factors) string {
	vals := []float64{f.TechnicalAlignment, f.CapabilityMatch, f.ExperienceMatch, f.KeywordAlignment}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	variance := 0.0
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(vals))

	switch {
	case variance <= 0.01:
		return "high"
	case variance <= 0.04:
		return "medium"
	default:
		return "low"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
