package domain

import (
	"time"

	"github.com/google/uuid"
)

// Grade is the recall quality reported after a review attempt.
// The four levels, worst to best:
// again: failed to recall
// hard:  recalled with serious difficulty
// good:  recalled with some effort
// easy:  recalled effortlessly
type Grade string

const (
	GradeAgain Grade = "again"
	GradeHard  Grade = "hard"
	GradeGood  Grade = "good"
	GradeEasy  Grade = "easy"
)

// Grades lists all grades worst to best.
var Grades = []Grade{GradeAgain, GradeHard, GradeGood, GradeEasy}

// IsValid reports whether g is one of the four known grades.
func (g Grade) IsValid() bool {
	switch g {
	case GradeAgain, GradeHard, GradeGood, GradeEasy:
		return true
	}
	return false
}

// AudioRef points at an audio clip by local name, with an optional
// backup URL to fetch it from when the local copy is missing.
type AudioRef struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url,omitempty"`
}

// Side is one face of a card.
type Side struct {
	Text  string    `yaml:"text" validate:"required"`
	Audio *AudioRef `yaml:"audio,omitempty"`
}

// Meta holds a card's identity and scheduling flags.
// ID is assigned once at creation and never changes, even when the
// card's content or location does.
type Meta struct {
	ID            string   `yaml:"id" validate:"required"`
	Dependencies  []string `yaml:"dependencies,omitempty"`
	Dependents    []string `yaml:"dependents,omitempty"`
	Suspended     bool     `yaml:"suspended"`
	Finished      bool     `yaml:"finished"`
	StabilityDays *float64 `yaml:"stability,omitempty"`
	Tags          []string `yaml:"tags,omitempty"`
}

// Review records a single review event. Timestamp is unix seconds,
// TimeSpent is whole seconds.
type Review struct {
	Timestamp int64 `yaml:"timestamp" validate:"required"`
	Grade     Grade `yaml:"grade" validate:"required,oneof=again hard good easy"`
	TimeSpent int64 `yaml:"time_spent"`
}

// Time returns the review instant.
func (r Review) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// Card is the durable card record. History is append-only; insertion
// order is chronological order.
type Card struct {
	Front   Side     `yaml:"front"`
	Back    Side     `yaml:"back"`
	Meta    Meta     `yaml:"meta"`
	History []Review `yaml:"history,omitempty" validate:"dive"`
}

// NewCard creates a finished card with a fresh id. It is not
// persisted until saved through the store.
func NewCard(front, back string) Card {
	return Card{
		Front: Side{Text: front},
		Back:  Side{Text: back},
		Meta: Meta{
			ID:       uuid.NewString(),
			Finished: true,
		},
	}
}

// Stability returns the recorded stability as a duration, and whether
// one has been recorded at all. It is persisted as a float number of
// days so card files stay readable; internally it is a time.Duration.
func (c *Card) Stability() (time.Duration, bool) {
	if c.Meta.StabilityDays == nil {
		return 0, false
	}
	return DaysToDuration(*c.Meta.StabilityDays), true
}

// SetStability replaces the stability wholesale.
func (c *Card) SetStability(d time.Duration) {
	days := DurationToDays(d)
	c.Meta.StabilityDays = &days
}

// LastReview returns the most recent review, if any.
func (c *Card) LastReview() (Review, bool) {
	if len(c.History) == 0 {
		return Review{}, false
	}
	return c.History[len(c.History)-1], true
}

// DaysToDuration converts a float day count to a duration.
func DaysToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}

// DurationToDays converts a duration to a float day count.
func DurationToDays(d time.Duration) float64 {
	return float64(d) / float64(24*time.Hour)
}
