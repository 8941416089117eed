// Package scheduler holds the pure scheduling math: memory strength
// decay, stability updates on review, and due/pending/unfinished
// classification. Nothing here touches disk or reads the clock;
// callers pass the current instant explicitly.
package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/example/cardbox/internal/domain"
)

const (
	// defaultInterval seeds stability for a card's first review.
	defaultInterval = 24 * time.Hour
	// reviewCooldown keeps a just-reviewed card from immediately
	// showing up as due again.
	reviewCooldown = time.Minute
)

// gradeFactors scale the previous interval into the new stability.
// Strictly increasing: a failed recall shrinks stability to a quarter
// of the prior interval, an effortless one triples it.
var gradeFactors = map[domain.Grade]float64{
	domain.GradeAgain: 0.25,
	domain.GradeHard:  0.75,
	domain.GradeGood:  2.0,
	domain.GradeEasy:  3.0,
}

// GradeFactor returns the stability multiplier for a grade.
func GradeFactor(g domain.Grade) (float64, bool) {
	f, ok := gradeFactors[g]
	return f, ok
}

// Strength computes the card's current memory strength in (0, 1]:
//
//	strength = e^(ln(0.9) * elapsed / stability)
//
// so strength is exactly 1.0 at the moment of review and exactly 0.9
// once one full stability interval has elapsed. The second return is
// false when the card has never been reviewed or has no stability
// recorded.
func Strength(card *domain.Card, now time.Time) (float64, bool) {
	last, ok := card.LastReview()
	if !ok {
		return 0, false
	}
	stability, ok := card.Stability()
	if !ok || stability <= 0 {
		return 0, false
	}
	elapsed := now.Sub(last.Time())
	if elapsed < 0 {
		// Clock skew; never report strength above 1.
		elapsed = 0
	}
	return math.Exp(math.Log(0.9) * elapsed.Seconds() / stability.Seconds()), true
}

// RecordReview returns a copy of the card with the review appended and
// the stability replaced wholesale:
//
//	stability = elapsed_since_last_review * factor(grade)
//
// For a first review the elapsed interval defaults to one day. This is
// the only transition of the review state machine; there is no way
// back to the never-reviewed state.
func RecordReview(card domain.Card, grade domain.Grade, spent time.Duration, now time.Time) (domain.Card, error) {
	factor, ok := gradeFactors[grade]
	if !ok {
		return domain.Card{}, fmt.Errorf("invalid grade %q", grade)
	}

	interval := defaultInterval
	if last, ok := card.LastReview(); ok {
		if elapsed := now.Sub(last.Time()); elapsed > 0 {
			interval = elapsed
		}
	}

	updated := card
	updated.History = append(append([]domain.Review(nil), card.History...), domain.Review{
		Timestamp: now.Unix(),
		Grade:     grade,
		TimeSpent: int64(spent.Seconds()),
	})
	updated.SetStability(time.Duration(float64(interval) * factor))
	return updated, nil
}

// Pending reports whether the card is finished but has never earned a
// stability, i.e. it awaits its first review.
func Pending(card *domain.Card) bool {
	if card.Meta.Suspended || !card.Meta.Finished {
		return false
	}
	_, has := card.Stability()
	return !has
}

// Unfinished reports whether the card still needs authoring before it
// can enter the review rotation.
func Unfinished(card *domain.Card) bool {
	return !card.Meta.Finished && !card.Meta.Suspended
}

// Due reports whether the card should be reviewed now: its stability
// interval has fully elapsed (strength decayed below 0.9) and the
// post-review cooldown has passed. Suspended and unfinished cards are
// never due.
func Due(card *domain.Card, now time.Time) bool {
	if card.Meta.Suspended || !card.Meta.Finished {
		return false
	}
	stability, ok := card.Stability()
	if !ok {
		return false
	}
	last, ok := card.LastReview()
	if !ok {
		return false
	}
	elapsed := now.Sub(last.Time())
	return elapsed > reviewCooldown && stability < elapsed
}

// State is a card's scheduling classification.
type State string

const (
	StateSuspended  State = "suspended"
	StateUnfinished State = "unfinished"
	StatePending    State = "pending"
	StateDue        State = "due"
	// StateWaiting means reviewed recently enough that the card is
	// not yet due again.
	StateWaiting State = "waiting"
)

// Classify maps a card to exactly one state. Pending, Unfinished and
// Due are pairwise disjoint by construction; everything else is
// waiting.
func Classify(card *domain.Card, now time.Time) State {
	switch {
	case card.Meta.Suspended:
		return StateSuspended
	case Unfinished(card):
		return StateUnfinished
	case Pending(card):
		return StatePending
	case Due(card, now):
		return StateDue
	default:
		return StateWaiting
	}
}
