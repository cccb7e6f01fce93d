package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphmem/pkg/errors"
	"graphmem/pkg/logger"
)

const (
	retryAttempts = 3
	retryBaseWait = 100 * time.Millisecond
)

// Store handles all Neo4j database operations
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewStore creates a new graph store
func NewStore(driver neo4j.DriverWithContext) *Store {
	return &Store{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

// UpsertNode creates or updates a node of the given kind. created_at is set
// only on first creation.
func (s *Store) UpsertNode(ctx context.Context, kind, id string, attrs map[string]interface{}) error {
	if !IsNodeKind(kind) {
		return errors.NewValidation("kind", fmt.Sprintf("unknown node kind %q", kind))
	}
	if id == "" {
		return errors.NewValidation("id", "must not be empty")
	}

	query := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		ON CREATE SET n.created_at = datetime($now)
		SET n += $attrs
	`, kind)

	return s.write(ctx, query, map[string]interface{}{
		"id":    id,
		"now":   time.Now().UTC().Format(time.RFC3339),
		"attrs": attrs,
	})
}

// UpsertRelationship creates the relationship if absent and merges attrs onto
// it. Both endpoints must already exist.
func (s *Store) UpsertRelationship(ctx context.Context, relType, fromID, toID string, attrs map[string]interface{}) error {
	if !IsRelationshipType(relType) {
		return errors.NewValidation("relationship", fmt.Sprintf("unknown relationship type %q", relType))
	}
	if fromID == "" || toID == "" {
		return errors.NewValidation("id", "relationship endpoints must not be empty")
	}

	query := fmt.Sprintf(`
		MATCH (a {id: $fromID})
		MATCH (b {id: $toID})
		MERGE (a)-[r:%s]->(b)
		SET r += $attrs
		RETURN count(r) as linked
	`, relType)

	records, err := s.ReadWriteQuery(ctx, query, map[string]interface{}{
		"fromID": fromID,
		"toID":   toID,
		"attrs":  attrs,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 || getInt64FromRecord(records[0], "linked") == 0 {
		return errors.NewConflict(fromID, fmt.Sprintf("endpoint missing for %s -> %s", relType, toID))
	}
	return nil
}

// DeleteNode deletes a node by id. Without cascade the delete is refused when
// the node still has incident relationships. The referenced check and the
// delete run in the same transaction.
func (s *Store) DeleteNode(ctx context.Context, id string, cascade bool) error {
	if id == "" {
		return errors.NewValidation("id", "must not be empty")
	}

	err := s.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx, `
			MATCH (n {id: $id})
			RETURN count { (n)--() } as refs
		`, map[string]interface{}{"id": id})
		if err != nil {
			return err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return errors.NewConflict(id, "node not found")
		}
		refs := getInt64FromRecord(record, "refs")
		if refs > 0 && !cascade {
			return errors.NewReferential(id, refs)
		}

		_, err = tx.Run(ctx, `
			MATCH (n {id: $id})
			DETACH DELETE n
		`, map[string]interface{}{"id": id})
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("Node deleted", zap.String("id", id), zap.Bool("cascade", cascade))
	return nil
}

// DeleteRelationship removes a single typed relationship between two nodes
func (s *Store) DeleteRelationship(ctx context.Context, relType, fromID, toID string) error {
	if !IsRelationshipType(relType) {
		return errors.NewValidation("relationship", fmt.Sprintf("unknown relationship type %q", relType))
	}

	query := fmt.Sprintf(`
		MATCH (a {id: $fromID})-[r:%s]->(b {id: $toID})
		DELETE r
	`, relType)

	return s.write(ctx, query, map[string]interface{}{
		"fromID": fromID,
		"toID":   toID,
	})
}

// ReadQuery runs a read-only query and collects the records. Each call
// re-runs the query against current graph state.
func (s *Store) ReadQuery(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	var records []*neo4j.Record
	err := s.withRetry(ctx, func() error {
		records = records[:0]
		result, err := session.Run(ctx, query, params)
		if err != nil {
			return err
		}
		for result.Next(ctx) {
			records = append(records, result.Record())
		}
		return result.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReadWriteQuery runs a single auto-commit write query and collects the
// records it returns.
func (s *Store) ReadWriteQuery(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	var records []*neo4j.Record
	err := s.withRetry(ctx, func() error {
		records = records[:0]
		result, err := session.Run(ctx, query, params)
		if err != nil {
			return err
		}
		for result.Next(ctx) {
			records = append(records, result.Record())
		}
		return result.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// WriteTx runs fn inside a managed write transaction: commit when fn returns
// nil, rollback on every other exit path.
func (s *Store) WriteTx(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return nil, fn(tx)
	})
	if err != nil && neo4j.IsRetryable(err) {
		// The managed transaction already exhausted the driver's own retries.
		return errors.NewTransientStore(retryAttempts, err)
	}
	return err
}

func (s *Store) write(ctx context.Context, query string, params map[string]interface{}) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	return s.withRetry(ctx, func() error {
		result, err := session.Run(ctx, query, params)
		if err != nil {
			return err
		}
		_, err = result.Consume(ctx)
		return err
	})
}

// withRetry retries transient store failures with bounded exponential
// backoff, then surfaces ErrTransientStore.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	wait := retryBaseWait
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = op()
		if err == nil || !neo4j.IsRetryable(err) {
			return err
		}
		if attempt == retryAttempts {
			break
		}
		s.logger.Warn("Transient store error, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait *= 2
	}
	return errors.NewTransientStore(retryAttempts, err)
}
