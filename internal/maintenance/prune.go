package maintenance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphmem/internal/graph"
	"graphmem/pkg/errors"
	"graphmem/pkg/logger"
)

// AllSessions selects every session for a pruning pass
const AllSessions = "all"

// RetentionPolicy bounds how much message history per session is kept.
// MaxMessagesPerSession keeps only the N most recent messages;
// MaxAgeDays additionally deletes messages older than D days regardless of
// count. Zero disables a facet; both active means the union is deleted.
type RetentionPolicy struct {
	MaxMessagesPerSession int `json:"max_messages_per_session"`
	MaxAgeDays            int `json:"max_age_days"`
}

// Enabled reports whether the policy deletes anything at all
func (p RetentionPolicy) Enabled() bool {
	return p.MaxMessagesPerSession > 0 || p.MaxAgeDays > 0
}

// Pruner enforces the retention policy on message history
type Pruner struct {
	store  *graph.Store
	logger *zap.Logger
}

// NewPruner creates a retention pruner
func NewPruner(store *graph.Store) *Pruner {
	return &Pruner{
		store:  store,
		logger: logger.Get(),
	}
}

// PruneMessages removes messages outside the retention window for one
// session, or for every session when sessionID is "all". Sessions are never
// deleted. The delete set is decided on a snapshot read taken per session,
// so messages appended after the snapshot are untouched; the deletion
// removes each message's relationships (MENTIONS included) but never the
// entities they point to.
func (p *Pruner) PruneMessages(ctx context.Context, sessionID string, policy RetentionPolicy) (*PassResult, error) {
	if sessionID == "" {
		return nil, errors.NewValidation("session_id", "must not be empty")
	}
	if !policy.Enabled() {
		return nil, errors.NewValidation("policy", "at least one of max_messages_per_session and max_age_days must be positive")
	}
	if policy.MaxMessagesPerSession < 0 || policy.MaxAgeDays < 0 {
		return nil, errors.NewValidation("policy", "retention limits must not be negative")
	}

	sessionIDs := []string{sessionID}
	if sessionID == AllSessions {
		var err error
		sessionIDs, err = p.listSessionIDs(ctx)
		if err != nil {
			return nil, err
		}
	}

	result := newPassResult(OpPruneMessages)
	now := time.Now().UTC()

	for _, sid := range sessionIDs {
		if ctx.Err() != nil {
			break
		}

		deleted, err := p.pruneSession(ctx, sid, policy, now)
		if err != nil {
			result.addError(sid, err)
			continue
		}
		if len(deleted) == 0 {
			result.Skipped++
			continue
		}
		result.Succeeded++
		result.TouchedIDs = append(result.TouchedIDs, sid)
		result.DeletedIDs = append(result.DeletedIDs, deleted...)
		p.logger.Info("Messages pruned",
			zap.String("session_id", sid),
			zap.Int("deleted", len(deleted)),
			zap.Strings("message_ids", deleted),
		)
	}
	return result, nil
}

// pruneSession snapshots one session's messages, computes the delete set and
// removes exactly those ids in one transaction.
func (p *Pruner) pruneSession(ctx context.Context, sessionID string, policy RetentionPolicy, now time.Time) ([]string, error) {
	records, err := p.store.ReadQuery(ctx, `
		MATCH (s:Session {id: $sessionID})-[:HAS_MESSAGE]->(m:Message)
		RETURN m.id as id, m.timestamp as timestamp, m.seq as seq
	`, map[string]interface{}{"sessionID": sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot session %s: %w", sessionID, err)
	}

	messages := make([]graph.Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, graph.Message{
			ID:        graph.StringFrom(record, "id"),
			Timestamp: graph.TimeFrom(record, "timestamp"),
			Seq:       graph.Int64From(record, "seq"),
		})
	}

	deleteIDs := retentionDeleteSet(messages, policy, now)
	if len(deleteIDs) == 0 {
		return nil, nil
	}

	err = p.store.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, `
			MATCH (m:Message)
			WHERE m.id IN $ids
			DETACH DELETE m
		`, map[string]interface{}{"ids": deleteIDs})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prune session %s: %w", sessionID, err)
	}
	return deleteIDs, nil
}

func (p *Pruner) listSessionIDs(ctx context.Context) ([]string, error) {
	records, err := p.store.ReadQuery(ctx, `
		MATCH (s:Session)
		RETURN s.id as id
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, graph.StringFrom(record, "id"))
	}
	return ids, nil
}

// retentionDeleteSet computes the union of messages beyond the retention
// count and messages past the age cutoff, against the same
// (timestamp, seq) ordering the ledger uses.
func retentionDeleteSet(messages []graph.Message, policy RetentionPolicy, now time.Time) []string {
	if len(messages) == 0 {
		return nil
	}

	// Newest first
	sorted := make([]graph.Message, len(messages))
	copy(sorted, messages)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].Seq > sorted[j].Seq
	})

	doomed := make(map[string]bool)
	if policy.MaxMessagesPerSession > 0 {
		for _, m := range sorted[minInt(policy.MaxMessagesPerSession, len(sorted)):] {
			doomed[m.ID] = true
		}
	}
	if policy.MaxAgeDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.MaxAgeDays)
		for _, m := range sorted {
			if m.Timestamp.Before(cutoff) {
				doomed[m.ID] = true
			}
		}
	}

	// Preserve newest-first order for deterministic logs
	var ids []string
	for _, m := range sorted {
		if doomed[m.ID] {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
