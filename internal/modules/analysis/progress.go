package analysis

import "time"

// Progress estimation. 10% is granted at start, 70% is split across agents,
// and the final 20% is reserved for the finalize step at completion.
const (
	progressBase         = 10.0
	progressAgentBand    = 70.0
	milestoneGranularity = 10.0
)

// EstimateProgress converts a completed-agent count into a percentage.
// Downstream agents (researchers, trader, risk team) push the count past the
// selected-analyst denominator, so the result is capped at 80; the final 20
// points belong to CompleteAnalysis. Callers must never persist a lower value
// than the one already recorded.
func EstimateProgress(agentsCompleted, totalAgents int) float64 {
	if totalAgents <= 0 {
		return progressBase
	}
	p := progressBase + float64(agentsCompleted)/float64(totalAgents)*progressAgentBand
	if p < 0 {
		return 0
	}
	if max := progressBase + progressAgentBand; p > max {
		return max
	}
	return p
}

// StageFor labels the stage a session is in for a given percentage.
func StageFor(progress float64) string {
	switch {
	case progress < 20:
		return StageDataCollection
	case progress < 80:
		return StageAnalysis
	default:
		return StageDecisionMaking
	}
}

// EstimateSecondsLeft projects remaining wall-clock time from elapsed time
// and current progress. Returns nil when the job has not started or no
// progress has been made yet.
func EstimateSecondsLeft(startedAt *time.Time, progress float64, now time.Time) *float64 {
	if startedAt == nil || progress <= 0 {
		return nil
	}
	elapsed := now.Sub(*startedAt).Seconds()
	if elapsed <= 0 {
		return nil
	}
	estimatedTotal := elapsed / (progress / 100)
	remaining := estimatedTotal - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// CrossedMilestone reports whether progress moved across a 10-point boundary.
func CrossedMilestone(before, after float64) bool {
	if after <= before {
		return false
	}
	return int(after/milestoneGranularity) > int(before/milestoneGranularity)
}
