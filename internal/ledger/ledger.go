// Package ledger is the hot path of the memory engine: append-only
// recording of conversation turns per session, with strict temporal
// ordering inside each session.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphmem/internal/graph"
	"graphmem/pkg/errors"
	"graphmem/pkg/logger"
)

// Roles recognized on messages
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Ledger records and reads conversation history
type Ledger struct {
	store  *graph.Store
	logger *zap.Logger
}

// NewLedger creates a new session/message ledger
func NewLedger(store *graph.Store) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.Get(),
	}
}

// AppendMessage creates the session if absent, appends one message and
// bumps the session's updated_at. The session sequence counter is
// incremented in the same write, so concurrent appends to one session get
// distinct sequence numbers for timestamp tie-breaking.
func (l *Ledger) AppendMessage(ctx context.Context, sessionID, role, content string, timestamp time.Time) (*graph.Message, error) {
	if sessionID == "" {
		return nil, errors.NewValidation("session_id", "must not be empty")
	}
	if role != RoleUser && role != RoleAssistant {
		return nil, errors.NewValidation("role", fmt.Sprintf("must be %q or %q, got %q", RoleUser, RoleAssistant, role))
	}
	if strings.TrimSpace(content) == "" {
		return nil, errors.NewValidation("content", "must not be empty")
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	msgID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)

	// The CREATE is not idempotent, so it runs under the managed transaction
	// rather than an auto-commit retry: a lost commit response is retried by
	// the driver without double-bumping the session sequence.
	var record *neo4j.Record
	err := l.store.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MERGE (s:Session {id: $sessionID})
			ON CREATE SET s.created_at = datetime($now), s.seq = 0
			SET s.seq = coalesce(s.seq, 0) + 1,
			    s.updated_at = datetime($now)
			CREATE (m:Message {
				id: $msgID,
				role: $role,
				content: $content,
				timestamp: datetime($timestamp),
				seq: s.seq
			})
			CREATE (s)-[:HAS_MESSAGE]->(m)
			RETURN m.id as id, m.seq as seq, m.timestamp as timestamp
		`, map[string]interface{}{
			"sessionID": sessionID,
			"msgID":     msgID,
			"role":      role,
			"content":   content,
			"timestamp": timestamp.UTC().Format(time.RFC3339),
			"now":       now,
		})
		if err != nil {
			return err
		}
		record, err = res.Single(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	msg := &graph.Message{
		ID:        graph.StringFrom(record, "id"),
		Role:      role,
		Content:   content,
		Timestamp: graph.TimeFrom(record, "timestamp"),
		Seq:       graph.Int64From(record, "seq"),
	}

	l.logger.Debug("Message appended",
		zap.String("session_id", sessionID),
		zap.String("message_id", msg.ID),
		zap.String("role", role),
	)
	return msg, nil
}

// ListMessages returns messages for a session ordered ascending by
// (timestamp, seq). When before is non-zero the ordering flips to
// descending below the bound, for pagination. limit <= 0 means unbounded.
// Each call re-runs the read against current graph state.
func (l *Ledger) ListMessages(ctx context.Context, sessionID string, limit int, before time.Time) ([]graph.Message, error) {
	if sessionID == "" {
		return nil, errors.NewValidation("session_id", "must not be empty")
	}

	params := map[string]interface{}{"sessionID": sessionID}

	var query string
	if before.IsZero() {
		query = `
			MATCH (s:Session {id: $sessionID})-[:HAS_MESSAGE]->(m:Message)
			RETURN m.id as id, m.role as role, m.content as content,
			       m.timestamp as timestamp, m.seq as seq
			ORDER BY m.timestamp ASC, m.seq ASC
		`
	} else {
		query = `
			MATCH (s:Session {id: $sessionID})-[:HAS_MESSAGE]->(m:Message)
			WHERE m.timestamp < datetime($before)
			RETURN m.id as id, m.role as role, m.content as content,
			       m.timestamp as timestamp, m.seq as seq
			ORDER BY m.timestamp DESC, m.seq DESC
		`
		params["before"] = before.UTC().Format(time.RFC3339)
	}
	if limit > 0 {
		query += " LIMIT $limit"
		params["limit"] = limit
	}

	records, err := l.store.ReadQuery(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messagesFromRecords(records), nil
}

// Recent returns the newest n messages in chronological order
func (l *Ledger) Recent(ctx context.Context, sessionID string, n int) ([]graph.Message, error) {
	if n < 1 {
		n = 20
	}

	records, err := l.store.ReadQuery(ctx, `
		MATCH (s:Session {id: $sessionID})-[:HAS_MESSAGE]->(m:Message)
		RETURN m.id as id, m.role as role, m.content as content,
		       m.timestamp as timestamp, m.seq as seq
		ORDER BY m.timestamp DESC, m.seq DESC
		LIMIT $limit
	`, map[string]interface{}{
		"sessionID": sessionID,
		"limit":     n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}

	messages := messagesFromRecords(records)
	// Reverse to restore chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MessageCount returns the number of messages owned by a session
func (l *Ledger) MessageCount(ctx context.Context, sessionID string) (int64, error) {
	records, err := l.store.ReadQuery(ctx, `
		MATCH (s:Session {id: $sessionID})-[:HAS_MESSAGE]->(m:Message)
		RETURN count(m) as count
	`, map[string]interface{}{"sessionID": sessionID})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return graph.Int64From(records[0], "count"), nil
}

// DeleteSession cascades deletion of all owned messages, then the session.
// This is the only caller-facing cascade delete: the affected message ids
// are collected under a read first, then removed in one transaction.
func (l *Ledger) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.NewValidation("session_id", "must not be empty")
	}

	records, err := l.store.ReadQuery(ctx, `
		MATCH (s:Session {id: $sessionID})
		OPTIONAL MATCH (s)-[:HAS_MESSAGE]->(m:Message)
		RETURN s.id as session_id, collect(m.id) as message_ids
	`, map[string]interface{}{"sessionID": sessionID})
	if err != nil {
		return fmt.Errorf("failed to collect session messages: %w", err)
	}
	if len(records) == 0 {
		return errors.NewConflict(sessionID, "session not found")
	}
	messageIDs := graph.StringSliceFrom(records[0], "message_ids")

	err = l.store.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		if len(messageIDs) > 0 {
			if _, err := tx.Run(ctx, `
				MATCH (m:Message)
				WHERE m.id IN $ids
				DETACH DELETE m
			`, map[string]interface{}{"ids": messageIDs}); err != nil {
				return err
			}
		}
		_, err := tx.Run(ctx, `
			MATCH (s:Session {id: $sessionID})
			DETACH DELETE s
		`, map[string]interface{}{"sessionID": sessionID})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	l.logger.Info("Session deleted",
		zap.String("session_id", sessionID),
		zap.Int("messages_deleted", len(messageIDs)),
		zap.Strings("message_ids", messageIDs),
	)
	return nil
}

func messagesFromRecords(records []*neo4j.Record) []graph.Message {
	var messages []graph.Message
	for _, record := range records {
		messages = append(messages, graph.Message{
			ID:        graph.StringFrom(record, "id"),
			Role:      graph.StringFrom(record, "role"),
			Content:   graph.StringFrom(record, "content"),
			Timestamp: graph.TimeFrom(record, "timestamp"),
			Seq:       graph.Int64From(record, "seq"),
		})
	}
	return messages
}
