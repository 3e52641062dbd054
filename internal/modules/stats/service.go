// Package stats aggregates decision statistics across completed analysis
// sessions.
package stats

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tradescope/pkg/formulas"
)

// DecisionStats summarizes outcomes across completed sessions.
type DecisionStats struct {
	TotalCompleted      int                    `json:"total_completed"`
	Decisions           map[string]int         `json:"decisions"`
	ConfidenceMean      float64                `json:"confidence_mean"`
	ConfidenceStdDev    float64                `json:"confidence_std_dev"`
	AvgExecutionSeconds float64                `json:"avg_execution_seconds"`
	AvgTokensPerSession float64                `json:"avg_tokens_per_session"`
	TotalCostUSD        float64                `json:"total_cost_usd"`
	ByTicker            map[string]TickerStats `json:"by_ticker"`
}

// TickerStats summarizes outcomes for one ticker.
type TickerStats struct {
	Completed      int     `json:"completed"`
	LastDecision   string  `json:"last_decision"`
	ConfidenceMean float64 `json:"confidence_mean"`
}

// Service computes decision statistics from the sessions table.
type Service struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewService creates a new stats service
func NewService(db *sql.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With().Str("service", "stats").Logger(),
	}
}

type completedRow struct {
	ticker     string
	decision   string
	confidence float64
	execSecs   float64
	tokens     int
	costUSD    float64
}

// DecisionStats computes aggregates over all completed sessions.
func (s *Service) DecisionStats() (*DecisionStats, error) {
	rows, err := s.db.Query(`
		SELECT ticker,
		       COALESCE(final_decision, ''),
		       COALESCE(confidence_score, 0),
		       COALESCE(execution_time_seconds, 0),
		       total_tokens_used,
		       total_cost_usd
		FROM analysis_sessions
		WHERE status = 'completed'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed sessions: %w", err)
	}
	defer rows.Close()

	var completed []completedRow
	for rows.Next() {
		var c completedRow
		if err := rows.Scan(&c.ticker, &c.decision, &c.confidence, &c.execSecs, &c.tokens, &c.costUSD); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		completed = append(completed, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}

	result := &DecisionStats{
		TotalCompleted: len(completed),
		Decisions:      map[string]int{},
		ByTicker:       map[string]TickerStats{},
	}
	if len(completed) == 0 {
		return result, nil
	}

	var (
		confidences  []float64
		execTimes    []float64
		totalTokens  float64
		byTickerConf = map[string][]float64{}
	)
	for _, c := range completed {
		result.Decisions[c.decision]++
		confidences = append(confidences, c.confidence)
		execTimes = append(execTimes, c.execSecs)
		totalTokens += float64(c.tokens)
		result.TotalCostUSD += c.costUSD

		ts := result.ByTicker[c.ticker]
		ts.Completed++
		ts.LastDecision = c.decision
		result.ByTicker[c.ticker] = ts
		byTickerConf[c.ticker] = append(byTickerConf[c.ticker], c.confidence)
	}

	result.ConfidenceMean = formulas.Mean(confidences)
	result.ConfidenceStdDev = formulas.StdDev(confidences)
	result.AvgExecutionSeconds = formulas.Mean(execTimes)
	result.AvgTokensPerSession = totalTokens / float64(len(completed))

	for ticker, confs := range byTickerConf {
		ts := result.ByTicker[ticker]
		ts.ConfidenceMean = formulas.Mean(confs)
		result.ByTicker[ticker] = ts
	}

	return result, nil
}
