package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"hive/pkg/hive"
)

const messageColumns = `id, from_bee, to_bee, type, subject, content, priority, task_id,
	processed, COALESCE(processed_at, ''), conversation_id, channel_compliant, created_at`

// Enqueue persists the envelope and returns the stored row. Delivery is a
// separate concern: callers invoke the Terminal Channel after enqueue.
func (s *Store) Enqueue(ctx context.Context, env hive.Envelope) (hive.Message, error) {
	if strings.TrimSpace(env.From) == "" {
		return hive.Message{}, &hive.ValidationError{Field: "from", Value: env.From, Reason: "must not be empty"}
	}
	if strings.TrimSpace(env.To) == "" {
		return hive.Message{}, &hive.ValidationError{Field: "to", Value: env.To, Reason: "must not be empty"}
	}
	if !env.Type.Valid() {
		return hive.Message{}, &hive.ValidationError{Field: "type", Value: string(env.Type), Reason: "unknown message type"}
	}
	priority := env.Priority
	if priority == "" {
		priority = hive.MsgNormal
	}
	if !priority.Valid() {
		return hive.Message{}, &hive.ValidationError{Field: "priority", Value: string(env.Priority), Reason: "unknown message priority"}
	}

	m := hive.Message{
		From:             env.From,
		To:               env.To,
		Type:             env.Type,
		Subject:          env.Subject,
		Content:          env.Content,
		Priority:         priority,
		TaskID:           env.TaskID,
		ConversationID:   env.ConversationID,
		ChannelCompliant: env.ChannelCompliant,
		CreatedAt:        s.now().UTC(),
	}
	if m.ConversationID == "" {
		m.ConversationID = uuid.NewString()
	}

	compliant := 0
	if m.ChannelCompliant {
		compliant = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (from_bee, to_bee, type, subject, content, priority, priority_rank,
			task_id, conversation_id, channel_compliant, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.From, m.To, string(m.Type), m.Subject, m.Content, string(m.Priority), m.Priority.Rank(),
		m.TaskID, m.ConversationID, compliant, fmtTime(m.CreatedAt))
	if err != nil {
		return hive.Message{}, &hive.PersistenceError{Op: "enqueue message", Err: err}
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return hive.Message{}, &hive.PersistenceError{Op: "enqueue message", Err: err}
	}
	return m, nil
}

// Inbox returns messages for a recipient with the given processed flag.
// Ordering: priority rank desc, then created_at asc, then id asc, so a
// high-priority late arrival overtakes older normal traffic while equal
// priorities stay first-in first-out.
func (s *Store) Inbox(ctx context.Context, to string, processed bool) ([]hive.Message, error) {
	flag := 0
	if processed {
		flag = 1
	}
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages
		WHERE to_bee = ? AND processed = ?
		ORDER BY priority_rank DESC, created_at ASC, id ASC`,
		to, flag)
}

// MarkProcessed sets processed and stamps processed_at. Idempotent: a row
// already processed is left untouched and no error is returned.
func (s *Store) MarkProcessed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET processed = 1, processed_at = ? WHERE id = ? AND processed = 0`,
		s.fmtNow(), id)
	if err != nil {
		return &hive.PersistenceError{Op: "mark processed", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return &hive.NotFoundError{Kind: "message", ID: fmt.Sprint(id)}
		}
		if err != nil {
			return &hive.PersistenceError{Op: "mark processed", Err: err}
		}
	}
	return nil
}

// History returns messages matching the filter, newest first.
func (s *Store) History(ctx context.Context, f hive.HistoryFilter) ([]hive.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE 1=1`
	var args []any
	if f.ConversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, f.ConversationID)
	}
	if f.Participant != "" {
		query += ` AND (from_bee = ? OR to_bee = ?)`
		args = append(args, f.Participant, f.Participant)
	}
	if !f.IncludeSystem {
		query += ` AND type NOT IN ('alert', 'notification')`
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)
	return s.queryMessages(ctx, query, args...)
}

// Violations returns non-compliant messages that bypassed the gateway,
// newer than afterID, newest first.
func (s *Store) Violations(ctx context.Context, gateway string, afterID int64, limit int) ([]hive.Message, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages
		WHERE channel_compliant = 0 AND from_bee != ? AND to_bee != ? AND id > ?
		ORDER BY id DESC LIMIT ?`,
		gateway, gateway, afterID, limit)
}

// Recent returns the newest messages up to limit, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]hive.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages ORDER BY id DESC LIMIT ?`, limit)
}

// ComplianceStats summarizes compliance over the last window messages.
func (s *Store) ComplianceStats(ctx context.Context, window int) (hive.ComplianceStats, error) {
	if window <= 0 {
		window = 100
	}
	var st hive.ComplianceStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(channel_compliant), 0), COUNT(DISTINCT conversation_id)
		FROM (SELECT channel_compliant, conversation_id FROM messages ORDER BY id DESC LIMIT ?)`,
		window).Scan(&st.Total, &st.Compliant, &st.Conversations)
	if err != nil {
		return hive.ComplianceStats{}, &hive.PersistenceError{Op: "compliance stats", Err: err}
	}
	if st.Total > 0 {
		st.RatePct = float64(st.Compliant) / float64(st.Total) * 100
	}
	return st, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]hive.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &hive.PersistenceError{Op: "query messages", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []hive.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, &hive.PersistenceError{Op: "scan message", Err: err}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &hive.PersistenceError{Op: "iterate messages", Err: err}
	}
	return out, nil
}

func scanMessage(sc scanner) (hive.Message, error) {
	var m hive.Message
	var typ, priority, processedAt, created string
	var processed, compliant int
	err := sc.Scan(&m.ID, &m.From, &m.To, &typ, &m.Subject, &m.Content, &priority, &m.TaskID,
		&processed, &processedAt, &m.ConversationID, &compliant, &created)
	if err != nil {
		return hive.Message{}, err
	}
	m.Type = hive.MessageType(typ)
	m.Priority = hive.MsgPriority(priority)
	m.Processed = processed != 0
	m.ChannelCompliant = compliant != 0
	if processedAt != "" {
		p, err := parseTime(processedAt)
		if err != nil {
			return hive.Message{}, err
		}
		m.ProcessedAt = &p
	}
	if m.CreatedAt, err = parseTime(created); err != nil {
		return hive.Message{}, err
	}
	return m, nil
}
