package analysis

import "database/sql"

// Schema for the analysis session store. All child tables cascade on session
// deletion; message_logs and progress_events are append-only.
const Schema = `
CREATE TABLE IF NOT EXISTS analysis_sessions (
    session_id TEXT PRIMARY KEY,
    owner TEXT NOT NULL DEFAULT '',
    ticker TEXT NOT NULL,
    trade_date TEXT NOT NULL,
    config_json TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    started_at TEXT,
    completed_at TEXT,
    execution_time_seconds REAL,
    current_stage TEXT NOT NULL DEFAULT '',
    current_agent TEXT NOT NULL DEFAULT '',
    progress_percentage REAL NOT NULL DEFAULT 0,
    estimated_seconds_left REAL,
    llm_call_count INTEGER NOT NULL DEFAULT 0,
    tool_call_count INTEGER NOT NULL DEFAULT 0,
    agents_completed INTEGER NOT NULL DEFAULT 0,
    agents_failed INTEGER NOT NULL DEFAULT 0,
    message_count INTEGER NOT NULL DEFAULT 0,
    total_tokens_used INTEGER NOT NULL DEFAULT 0,
    total_cost_usd REAL NOT NULL DEFAULT 0,
    last_message TEXT NOT NULL DEFAULT '',
    last_message_timestamp TEXT,
    final_decision TEXT NOT NULL DEFAULT '',
    confidence_score REAL,
    confidence_level TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    error_details TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON analysis_sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_ticker ON analysis_sessions(ticker);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON analysis_sessions(created_at);

CREATE TABLE IF NOT EXISTS report_sections (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES analysis_sessions(session_id) ON DELETE CASCADE,
    section_type TEXT NOT NULL,
    agent_name TEXT NOT NULL,
    content TEXT NOT NULL,
    content_length INTEGER NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE(session_id, section_type, agent_name)
);

CREATE TABLE IF NOT EXISTS agent_executions (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES analysis_sessions(session_id) ON DELETE CASCADE,
    agent_name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    started_at TEXT,
    completed_at TEXT,
    llm_calls INTEGER NOT NULL DEFAULT 0,
    tool_calls INTEGER NOT NULL DEFAULT 0,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    UNIQUE(session_id, agent_name)
);

CREATE TABLE IF NOT EXISTS progress_events (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES analysis_sessions(session_id) ON DELETE CASCADE,
    event_type TEXT NOT NULL,
    stage TEXT NOT NULL DEFAULT '',
    agent_name TEXT NOT NULL DEFAULT '',
    percentage REAL NOT NULL DEFAULT 0,
    detail TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_progress_events_session ON progress_events(session_id);

CREATE TABLE IF NOT EXISTS message_logs (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES analysis_sessions(session_id) ON DELETE CASCADE,
    sequence_number INTEGER NOT NULL,
    kind TEXT NOT NULL,
    content TEXT NOT NULL,
    tool_name TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    UNIQUE(session_id, sequence_number)
);
`

// InitSchema ensures the analysis tables exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
