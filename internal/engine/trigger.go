package engine

import (
	"time"

	"github.com/tutorloop/tutorloop/internal/config"
)

// TriggerDecision records whether and why a context's buffered evidence
// justifies advancing its state.
type TriggerDecision struct {
	Fired  bool
	Reason string // "buffer_full", "kind_change", "time_elapsed", "score_present", "not_triggered"
}

// evaluateTrigger applies the update-trigger policy to a context whose lock
// is held. The trigger fires when ANY enabled clause holds:
//
//	buffer size >= minimum             -> "buffer_full"
//	newest kind != last processed kind -> "kind_change"
//	elapsed since last update > window -> "time_elapsed"
//	newest event carries a score       -> "score_present"
//
// Score-bearing events are checked first: they are inherently significant
// and should advance state immediately regardless of buffer depth.
func evaluateTrigger(cfg config.TriggerConfig, lc *learnerContext, now time.Time) TriggerDecision {
	if len(lc.buffer) == 0 {
		return TriggerDecision{Reason: "not_triggered"}
	}
	newest := lc.buffer[len(lc.buffer)-1]

	if cfg.OnScore && newest.HasScore {
		return TriggerDecision{Fired: true, Reason: "score_present"}
	}
	if len(lc.buffer) >= cfg.MinBufferSize {
		return TriggerDecision{Fired: true, Reason: "buffer_full"}
	}
	if cfg.OnKindChange && lc.hasLastProcessedKind && newest.Kind != lc.lastProcessedKind {
		return TriggerDecision{Fired: true, Reason: "kind_change"}
	}
	if cfg.MaxElapsed > 0 && now.Sub(lc.lastUpdate) > cfg.MaxElapsed {
		return TriggerDecision{Fired: true, Reason: "time_elapsed"}
	}
	return TriggerDecision{Reason: "not_triggered"}
}
