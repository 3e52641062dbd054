package analysis

import (
	"testing"
	"time"
)

func TestEstimateProgress(t *testing.T) {
	tests := []struct {
		name            string
		agentsCompleted int
		totalAgents     int
		expected        float64
	}{
		{"no agents done", 0, 4, 10.0},
		{"half done", 2, 4, 45.0},
		{"all done", 4, 4, 80.0},
		{"single analyst done", 1, 1, 80.0},
		{"zero total defaults to base", 0, 0, 10.0},
		{"downstream agents cap at 80", 7, 4, 80.0},
		{"over-complete caps at 80", 10, 4, 80.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateProgress(tt.agentsCompleted, tt.totalAgents)
			if got != tt.expected {
				t.Errorf("EstimateProgress(%d, %d) = %.2f, want %.2f",
					tt.agentsCompleted, tt.totalAgents, got, tt.expected)
			}
		})
	}
}

func TestStageFor(t *testing.T) {
	tests := []struct {
		progress float64
		expected string
	}{
		{0, StageDataCollection},
		{10, StageDataCollection},
		{19.9, StageDataCollection},
		{20, StageAnalysis},
		{45, StageAnalysis},
		{79.9, StageAnalysis},
		{80, StageDecisionMaking},
		{100, StageDecisionMaking},
	}

	for _, tt := range tests {
		if got := StageFor(tt.progress); got != tt.expected {
			t.Errorf("StageFor(%.1f) = %q, want %q", tt.progress, got, tt.expected)
		}
	}
}

func TestEstimateSecondsLeft(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-60 * time.Second)

	t.Run("not started", func(t *testing.T) {
		if got := EstimateSecondsLeft(nil, 50, now); got != nil {
			t.Errorf("expected nil, got %v", *got)
		}
	})

	t.Run("no progress", func(t *testing.T) {
		if got := EstimateSecondsLeft(&started, 0, now); got != nil {
			t.Errorf("expected nil, got %v", *got)
		}
	})

	t.Run("halfway", func(t *testing.T) {
		got := EstimateSecondsLeft(&started, 50, now)
		if got == nil {
			t.Fatal("expected estimate, got nil")
		}
		// 60s elapsed at 50% projects 60s remaining
		if *got < 59 || *got > 61 {
			t.Errorf("expected ~60s remaining, got %.2f", *got)
		}
	})

	t.Run("never negative", func(t *testing.T) {
		justStarted := now.Add(-time.Millisecond)
		got := EstimateSecondsLeft(&justStarted, 100, now)
		if got == nil {
			t.Fatal("expected estimate, got nil")
		}
		if *got < 0 {
			t.Errorf("expected non-negative estimate, got %.2f", *got)
		}
	})
}

func TestCrossedMilestone(t *testing.T) {
	tests := []struct {
		name     string
		before   float64
		after    float64
		expected bool
	}{
		{"crosses one boundary", 15, 25, true},
		{"crosses several boundaries", 10, 45, true},
		{"within same decade", 41, 49, false},
		{"no movement", 45, 45, false},
		{"decrease never fires", 45, 30, false},
		{"lands exactly on boundary", 45, 50, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CrossedMilestone(tt.before, tt.after); got != tt.expected {
				t.Errorf("CrossedMilestone(%.0f, %.0f) = %v, want %v",
					tt.before, tt.after, got, tt.expected)
			}
		})
	}
}
