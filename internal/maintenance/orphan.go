package maintenance

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphmem/internal/graph"
	"graphmem/pkg/errors"
	"graphmem/pkg/logger"
)

// OrphanDetector finds and removes nodes with no incident relationships.
// Sessions are exempt: a session may legitimately have no messages yet.
type OrphanDetector struct {
	store  *graph.Store
	logger *zap.Logger
}

// NewOrphanDetector creates an orphan detector
func NewOrphanDetector(store *graph.Store) *OrphanDetector {
	return &OrphanDetector{
		store:  store,
		logger: logger.Get(),
	}
}

// defaultOrphanKinds is every node kind except Session
func defaultOrphanKinds() []string {
	var kinds []string
	for _, kind := range graph.NodeKinds() {
		if kind != graph.KindSession {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// FindOrphans returns, per requested kind, the ids of nodes with zero
// incident relationships in either direction. Empty kinds means every kind
// except Session.
func (d *OrphanDetector) FindOrphans(ctx context.Context, kinds []string) (map[string][]string, error) {
	if len(kinds) == 0 {
		kinds = defaultOrphanKinds()
	}
	for _, kind := range kinds {
		if !graph.IsNodeKind(kind) {
			return nil, errors.NewValidation("kind", fmt.Sprintf("unknown node kind %q", kind))
		}
	}

	orphans := make(map[string][]string, len(kinds))
	for _, kind := range kinds {
		records, err := d.store.ReadQuery(ctx, fmt.Sprintf(`
			MATCH (n:%s)
			WHERE NOT (n)--()
			RETURN n.id as id
		`, kind), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to find %s orphans: %w", kind, err)
		}
		ids := make([]string, 0, len(records))
		for _, record := range records {
			ids = append(ids, graph.StringFrom(record, "id"))
		}
		orphans[kind] = ids
	}
	return orphans, nil
}

// RemoveOrphans deletes the listed nodes. Under dryRun it only reports how
// many of them are currently orphaned, per kind. A real run re-checks
// orphanhood inside each delete transaction: a node that regained a
// relationship since it was listed is skipped, not failed.
func (d *OrphanDetector) RemoveOrphans(ctx context.Context, ids []string, dryRun bool) (*PassResult, map[string]int64, error) {
	result := newPassResult(OpRemoveOrphans)
	counts := make(map[string]int64)

	if dryRun {
		records, err := d.store.ReadQuery(ctx, `
			MATCH (n)
			WHERE n.id IN $ids AND NOT (n)--()
			RETURN labels(n)[0] as label, count(n) as count
		`, map[string]interface{}{"ids": ids})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to count orphans: %w", err)
		}
		for _, record := range records {
			label := graph.StringFrom(record, "label")
			counts[label] = graph.Int64From(record, "count")
			result.Succeeded += int(counts[label])
		}
		return result, counts, nil
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		var deletedLabel string
		err := d.store.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
			res, err := tx.Run(ctx, `
				MATCH (n {id: $id})
				WHERE NOT (n)--()
				WITH n, labels(n)[0] as label
				DELETE n
				RETURN label
			`, map[string]interface{}{"id": id})
			if err != nil {
				return err
			}
			if res.Next(ctx) {
				deletedLabel = graph.StringFrom(res.Record(), "label")
			}
			return res.Err()
		})
		if err != nil {
			result.addError(id, err)
			continue
		}
		if deletedLabel == "" {
			// Gone already, or no longer an orphan. Either way skip.
			result.addSkip(id, "not orphaned at deletion time")
			continue
		}

		result.Succeeded++
		result.DeletedIDs = append(result.DeletedIDs, id)
		counts[deletedLabel]++
	}

	if len(result.DeletedIDs) > 0 {
		d.logger.Info("Orphan nodes removed",
			zap.Strings("ids", result.DeletedIDs),
			zap.Any("per_kind", counts),
		)
	}
	return result, counts, nil
}
