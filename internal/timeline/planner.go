// Package timeline turns a record deadline into a phased application plan
// and an urgency classification.
package timeline

import (
	"time"
)

// Urgency levels, most severe first.
const (
	UrgencyExpired  = "expired"
	UrgencyCritical = "critical"
	UrgencyUrgent   = "urgent"
	UrgencyHigh     = "high"
	UrgencyModerate = "moderate"
	UrgencyLow      = "low"
)

// Phase is one named span of the application plan.
type Phase struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  float64   `json:"days"`
}

// Plan is the full application plan for one deadline. Urgency is nil when
// the deadline is unknown; callers must not treat that as "low".
type Plan struct {
	Phases        []Phase    `json:"phases,omitempty"`
	Urgency       *string    `json:"urgency"`
	DaysRemaining *int       `json:"days_remaining"`
	Deadline      *time.Time `json:"deadline"`
	Warning       string     `json:"warning,omitempty"`
}

// phaseShares allocates the available runway across the five fixed phases.
// Shares sum to 1; a short runway compresses every phase proportionally
// instead of dropping any.
var phaseShares = []struct {
	name  string
	share float64
}{
	{"initial review", 0.10},
	{"technical development", 0.30},
	{"draft writing", 0.25},
	{"review and refinement", 0.20},
	{"final preparation", 0.15},
}

// BuildPlan produces the plan for a deadline relative to now. A nil
// deadline yields a plan with nil urgency and a warning rather than a
// fabricated date.
func BuildPlan(deadline *time.Time, now time.Time) Plan {
	if deadline == nil {
		return Plan{
			Warning: "deadline unknown or unparseable, no schedule computed",
		}
	}

	now = now.UTC()
	dl := deadline.UTC()
	days := daysRemaining(dl, now)
	urgency := classify(days)

	plan := Plan{
		Urgency:       &urgency,
		DaysRemaining: &days,
		Deadline:      &dl,
	}
	if urgency == UrgencyExpired {
		plan.Warning = "deadline has passed"
		return plan
	}

	remaining := dl.Sub(now)
	cursor := now
	for _, ps := range phaseShares {
		span := time.Duration(float64(remaining) * ps.share)
		end := cursor.Add(span)
		plan.Phases = append(plan.Phases, Phase{
			Name:  ps.name,
			Start: cursor,
			End:   end,
			Days:  span.Hours() / 24,
		})
		cursor = end
	}
	// Rounding drift on the last phase lands exactly on the deadline.
	plan.Phases[len(plan.Phases)-1].End = dl

	return plan
}

// Classify maps a deadline to an urgency level, or nil when unknown.
func Classify(deadline *time.Time, now time.Time) *string {
	if deadline == nil {
		return nil
	}
	u := classify(daysRemaining(deadline.UTC(), now.UTC()))
	return &u
}

// daysRemaining is whole days until the deadline, floor of the hour count.
func daysRemaining(deadline, now time.Time) int {
	hours := deadline.Sub(now).Hours()
	if hours < 0 {
		return int(hours / 24)
	}
	return int(hours) / 24
}

func classify(days int) string {
	switch {
	case days <= 0:
		return UrgencyExpired
	case days <= 3:
		return UrgencyCritical
	case days <= 7:
		return UrgencyUrgent
	case days <= 14:
		return UrgencyHigh
	case days <= 30:
		return UrgencyModerate
	default:
		return UrgencyLow
	}
}
