package main

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS decision_history (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		message_ref      TEXT NOT NULL,
		reporter_id      TEXT DEFAULT '',
		action           TEXT NOT NULL,
		confidence       TEXT NOT NULL,
		explanation      TEXT DEFAULT '',
		ticket_link      TEXT DEFAULT '',
		new_ticket_team  TEXT DEFAULT '',
		new_ticket_title TEXT DEFAULT '',
		llm_provider     TEXT DEFAULT '',
		llm_model        TEXT DEFAULT '',
		policy_version   TEXT DEFAULT '',
		was_correct      INTEGER,
		decided_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_dh_message_ref ON decision_history(message_ref);
	CREATE INDEX IF NOT EXISTS idx_dh_date ON decision_history(decided_at);

	CREATE TABLE IF NOT EXISTS triage_corrections (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		decision_id      INTEGER NOT NULL,
		message_ref      TEXT DEFAULT '',
		bot_action       TEXT NOT NULL,
		corrected_action TEXT NOT NULL,
		reason           TEXT DEFAULT '',
		corrected_by     TEXT DEFAULT '',
		corrected_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tc_decision ON triage_corrections(decision_id);
	CREATE INDEX IF NOT EXISTS idx_tc_date ON triage_corrections(corrected_at);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// DecisionRecord is one row of the decision log. WasCorrect is pending
// (nil) until a human verdict arrives.
type DecisionRecord struct {
	ID             int64
	MessageRef     string
	ReporterID     string
	Action         Action
	Confidence     Confidence
	Explanation    string
	TicketLink     string
	NewTicketTeam  Team
	NewTicketTitle string
	LLMProvider    string
	LLMModel       string
	PolicyVersion  PolicyVersion
	WasCorrect     *bool
	DecidedAt      time.Time
}

func InsertDecision(db *sql.DB, r DecisionRecord) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO decision_history
		 (message_ref, reporter_id, action, confidence, explanation, ticket_link,
		  new_ticket_team, new_ticket_title, llm_provider, llm_model, policy_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MessageRef, r.ReporterID, string(r.Action), string(r.Confidence), r.Explanation,
		r.TicketLink, string(r.NewTicketTeam), r.NewTicketTitle,
		r.LLMProvider, r.LLMModel, string(r.PolicyVersion),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// MarkDecisionOutcome records a human verdict on a pending decision.
func MarkDecisionOutcome(db *sql.DB, id int64, correct bool) error {
	val := 0
	if correct {
		val = 1
	}
	_, err := db.Exec(`UPDATE decision_history SET was_correct = ? WHERE id = ?`, val, id)
	return err
}

func HasDecisionForMessage(db *sql.DB, messageRef string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM decision_history WHERE message_ref = ?`, messageRef).Scan(&count)
	return count > 0, err
}

func GetDecisionByID(db *sql.DB, id int64) (DecisionRecord, error) {
	var r DecisionRecord
	var wasCorrect sql.NullInt64
	var action, confidence, team, policy string
	err := db.QueryRow(
		`SELECT id, message_ref, reporter_id, action, confidence, explanation, ticket_link,
		        new_ticket_team, new_ticket_title, llm_provider, llm_model, policy_version,
		        was_correct, decided_at
		 FROM decision_history WHERE id = ?`,
		id,
	).Scan(
		&r.ID, &r.MessageRef, &r.ReporterID, &action, &confidence, &r.Explanation,
		&r.TicketLink, &team, &r.NewTicketTitle, &r.LLMProvider, &r.LLMModel, &policy,
		&wasCorrect, &r.DecidedAt,
	)
	if err != nil {
		return r, err
	}
	r.Action = Action(action)
	r.Confidence = Confidence(confidence)
	r.NewTicketTeam = Team(team)
	r.PolicyVersion = PolicyVersion(policy)
	if wasCorrect.Valid {
		v := wasCorrect.Int64 == 1
		r.WasCorrect = &v
	}
	return r, nil
}

func GetPendingDecisions(db *sql.DB, since time.Time, limit int) ([]DecisionRecord, error) {
	rows, err := db.Query(
		`SELECT id, message_ref, reporter_id, action, confidence, explanation, ticket_link,
		        new_ticket_team, new_ticket_title, llm_provider, llm_model, policy_version,
		        was_correct, decided_at
		 FROM decision_history
		 WHERE was_correct IS NULL AND decided_at >= ?
		 ORDER BY decided_at DESC
		 LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecisions(rows)
}

func scanDecisions(rows *sql.Rows) ([]DecisionRecord, error) {
	var out []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var wasCorrect sql.NullInt64
		var action, confidence, team, policy string
		if err := rows.Scan(
			&r.ID, &r.MessageRef, &r.ReporterID, &action, &confidence, &r.Explanation,
			&r.TicketLink, &team, &r.NewTicketTitle, &r.LLMProvider, &r.LLMModel, &policy,
			&wasCorrect, &r.DecidedAt,
		); err != nil {
			return nil, err
		}
		r.Action = Action(action)
		r.Confidence = Confidence(confidence)
		r.NewTicketTeam = Team(team)
		r.PolicyVersion = PolicyVersion(policy)
		if wasCorrect.Valid {
			v := wasCorrect.Int64 == 1
			r.WasCorrect = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Corrections ---

// TriageCorrection is a human correction of a logged decision. The log is
// append-only.
type TriageCorrection struct {
	ID              int64
	DecisionID      int64
	MessageRef      string
	BotAction       Action
	CorrectedAction Action
	Reason          string
	CorrectedBy     string
	CorrectedAt     time.Time
}

// RecordCorrection appends a correction and marks the underlying decision
// incorrect in the same transaction.
func RecordCorrection(db *sql.DB, c TriageCorrection) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO triage_corrections
		 (decision_id, message_ref, bot_action, corrected_action, reason, corrected_by)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.DecisionID, c.MessageRef, string(c.BotAction), string(c.CorrectedAction),
		c.Reason, c.CorrectedBy,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE decision_history SET was_correct = 0 WHERE id = ?`, c.DecisionID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func GetRecentCorrections(db *sql.DB, since time.Time, limit int) ([]TriageCorrection, error) {
	rows, err := db.Query(
		`SELECT id, decision_id, message_ref, bot_action, corrected_action, reason, corrected_by, corrected_at
		 FROM triage_corrections
		 WHERE corrected_at >= ?
		 ORDER BY corrected_at DESC
		 LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TriageCorrection
	for rows.Next() {
		var c TriageCorrection
		var botAction, correctedAction string
		if err := rows.Scan(
			&c.ID, &c.DecisionID, &c.MessageRef, &botAction, &correctedAction,
			&c.Reason, &c.CorrectedBy, &c.CorrectedAt,
		); err != nil {
			return nil, err
		}
		c.BotAction = Action(botAction)
		c.CorrectedAction = Action(correctedAction)
		out = append(out, c)
	}
	return out, rows.Err()
}
