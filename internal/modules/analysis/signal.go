package analysis

import (
	"regexp"
	"strconv"
	"strings"
)

// Decision extraction from the pipeline's free-text final verdict. The
// pipeline is opaque; the engine only normalizes its output into BUY/SELL/HOLD
// plus a confidence score for the session row.

var (
	buyPattern  = regexp.MustCompile(`(?i)\b(buy|long|bullish|accumulate|scale in)\b`)
	sellPattern = regexp.MustCompile(`(?i)\b(sell|short|bearish|exit|divest)\b`)
	holdPattern = regexp.MustCompile(`(?i)\b(hold|neutral|wait|no action)\b`)

	confidencePattern = regexp.MustCompile(`(?i)confidence[:\s]+([0-9]*\.?[0-9]+)`)
)

// ExtractSignal normalizes a final-decision text into an action and a
// confidence score in [0, 1]. Deterministic for a fixed input.
func ExtractSignal(finalDecision string) (action string, confidence float64) {
	text := strings.ToLower(finalDecision)

	buyScore := len(buyPattern.FindAllString(text, -1))
	sellScore := len(sellPattern.FindAllString(text, -1))
	holdScore := len(holdPattern.FindAllString(text, -1))

	switch {
	case buyScore > sellScore && buyScore > holdScore:
		action = "BUY"
	case sellScore > buyScore && sellScore > holdScore:
		action = "SELL"
	default:
		action = "HOLD"
	}

	// An explicit "confidence: 0.x" in the verdict wins.
	if m := confidencePattern.FindStringSubmatch(finalDecision); len(m) == 2 {
		if v := parseUnitFloat(m[1]); v >= 0 {
			return action, v
		}
	}

	// Otherwise score dominance: a unanimous signal reads as high
	// confidence, a contested one as low.
	total := buyScore + sellScore + holdScore
	if total == 0 {
		return action, 0.5
	}
	max := buyScore
	if sellScore > max {
		max = sellScore
	}
	if holdScore > max {
		max = holdScore
	}
	confidence = 0.5 + 0.5*float64(max)/float64(total)
	if confidence > 1 {
		confidence = 1
	}
	return action, confidence
}

// parseUnitFloat parses a float, reading values above 1 as percentages.
// Returns -1 when the value cannot be mapped into [0, 1].
func parseUnitFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return -1
	}
	if v > 1 {
		v = v / 100
	}
	if v > 1 {
		return -1
	}
	return v
}
