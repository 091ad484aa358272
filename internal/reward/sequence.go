package reward

import (
	"github.com/tutorloop/tutorloop/internal/events"
)

// sequencePair keys the beneficial-sequence table.
type sequencePair struct {
	prev events.ActionKind
	next events.ActionKind
}

// beneficialSequences scores pedagogically sound action orderings. The
// value scales the tier-dependent sequence bonus; pairs missing from the
// table contribute nothing.
var beneficialSequences = map[sequencePair]float64{
	// Study before attempting.
	{events.ActionViewContent, events.ActionAttemptQuiz}:         1.0,
	{events.ActionDownloadResource, events.ActionAttemptQuiz}:    0.8,
	{events.ActionViewAssignment, events.ActionSubmitAssignment}: 1.0,
	{events.ActionViewContent, events.ActionViewAssignment}:      0.5,

	// Finish what was started.
	{events.ActionAttemptQuiz, events.ActionSubmitQuiz}: 1.0,

	// Review after submitting, then try again.
	{events.ActionSubmitQuiz, events.ActionReviewQuiz}:  0.8,
	{events.ActionReviewQuiz, events.ActionAttemptQuiz}: 0.8,

	// Discussion feeding back into practice.
	{events.ActionViewForum, events.ActionPostForum}:   0.5,
	{events.ActionPostForum, events.ActionAttemptQuiz}: 0.5,
}

// SequenceScale returns the bonus scale for a (previous, current) action
// pair, zero when the pair is not beneficial.
func SequenceScale(prev, next events.ActionKind) float64 {
	return beneficialSequences[sequencePair{prev, next}]
}
