package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/area/internal/ir"
)

// ClaimMessage records (messageID, ownerID) in the dedup ledger.
// Uses ON CONFLICT DO NOTHING so the unique constraint claims the slot
// atomically: claimed is false when the pair was already recorded.
//
// Run it inside the same Tx as the rest of the event's writes. Rolling the
// Tx back releases the claim.
func (c conn) ClaimMessage(ctx context.Context, messageID string, ownerID int64, at time.Time) (claimed bool, err error) {
	result, err := c.exec(ctx, `
		INSERT INTO processed_messages (message_id, user_id, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID, ownerID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("claim message %q: %w", messageID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim message %q: rows affected: %w", messageID, err)
	}
	return n > 0, nil
}

// AlreadyProcessed reports whether (messageID, ownerID) is in the ledger.
// It is a read-only lookup for audit tooling; the event pipeline gates on
// ClaimMessage, which checks and records in one statement.
func (c conn) AlreadyProcessed(ctx context.Context, messageID string, ownerID int64) (bool, error) {
	var one int
	err := c.queryRow(ctx, `
		SELECT 1 FROM processed_messages WHERE message_id = ? AND user_id = ?
	`, messageID, ownerID).Scan(&one)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check message %q: %w", messageID, err)
	}
	return true, nil
}

// ListProcessedMessages returns the dedup ledger ordered by id.
func (c conn) ListProcessedMessages(ctx context.Context) ([]ir.DedupRecord, error) {
	rows, err := c.query(ctx, `
		SELECT id, message_id, user_id, processed_at
		FROM processed_messages
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list processed messages: %w", err)
	}
	defer rows.Close()

	var records []ir.DedupRecord
	for rows.Next() {
		var r ir.DedupRecord
		if err := rows.Scan(&r.ID, &r.MessageID, &r.OwnerID, &r.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan processed message: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed messages: %w", err)
	}
	return records, nil
}

// AppendLastEvent inserts an audit row and returns its id. An empty
// ReactionName is stored as NULL.
func (c conn) AppendLastEvent(ctx context.Context, ev ir.LastExecutedEvent) (int64, error) {
	var id int64
	err := c.queryRow(ctx, `
		INSERT INTO last_events (trigger_name, action_name, timestamp)
		VALUES (?, ?, ?)
		RETURNING id
	`, ev.Trigger, nullString(ev.ReactionName), ev.Timestamp.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append last event: %w", err)
	}
	return id, nil
}

// ListLastEvents returns every audit row ordered by id.
func (c conn) ListLastEvents(ctx context.Context) ([]ir.LastExecutedEvent, error) {
	rows, err := c.query(ctx, `
		SELECT id, trigger_name, action_name, timestamp
		FROM last_events
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list last events: %w", err)
	}
	defer rows.Close()

	var events []ir.LastExecutedEvent
	for rows.Next() {
		ev, err := scanLastEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last events: %w", err)
	}
	return events, nil
}

// LatestLastEvent returns the most recent audit row by timestamp, breaking
// ties by id. Returns ErrNotFound on an empty log.
func (c conn) LatestLastEvent(ctx context.Context) (ir.LastExecutedEvent, error) {
	rows, err := c.query(ctx, `
		SELECT id, trigger_name, action_name, timestamp
		FROM last_events
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`)
	if err != nil {
		return ir.LastExecutedEvent{}, fmt.Errorf("latest last event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ir.LastExecutedEvent{}, fmt.Errorf("latest last event: %w", err)
		}
		return ir.LastExecutedEvent{}, fmt.Errorf("latest last event: %w", ErrNotFound)
	}
	return scanLastEvent(rows)
}

func scanLastEvent(rows *sql.Rows) (ir.LastExecutedEvent, error) {
	var (
		ev     ir.LastExecutedEvent
		action sql.NullString
	)
	if err := rows.Scan(&ev.ID, &ev.Trigger, &action, &ev.Timestamp); err != nil {
		return ir.LastExecutedEvent{}, fmt.Errorf("scan last event: %w", err)
	}
	ev.ReactionName = action.String
	return ev, nil
}
