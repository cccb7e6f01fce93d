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

// entityRecord is the snapshot of one entity taken at the start of a
// resolver pass
type entityRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// CandidateGroup is a set of entities that should collapse into one.
// Advisory groups come from the fuzzy second pass and are merged only when
// the resolver is configured to include them.
type CandidateGroup struct {
	IDs      []string `json:"ids"`
	Names    []string `json:"names"`
	Advisory bool     `json:"advisory,omitempty"`
}

// Resolver keeps the entity set deduplicated
type Resolver struct {
	store  *graph.Store
	scorer Scorer
	// Threshold for the advisory fuzzy pass
	Threshold float64
	// IncludeAdvisory gates whether fuzzy candidates are merged by MergeAuto
	IncludeAdvisory bool
	logger          *zap.Logger
}

// NewResolver creates an entity resolver with an injected similarity scorer
func NewResolver(store *graph.Store, scorer Scorer, threshold float64) *Resolver {
	if scorer == nil {
		scorer = OverlapScorer
	}
	return &Resolver{
		store:     store,
		scorer:    scorer,
		Threshold: threshold,
		logger:    logger.Get(),
	}
}

// FindRedundantEntities loads every entity and returns groups of merge
// candidates: exact groups share a normalized name, advisory groups score
// above the threshold under the injected comparator.
func (r *Resolver) FindRedundantEntities(ctx context.Context, threshold float64) ([]CandidateGroup, error) {
	if threshold <= 0 {
		threshold = r.Threshold
	}

	entities, err := r.loadEntities(ctx)
	if err != nil {
		return nil, err
	}
	return groupEntities(entities, r.scorer, threshold), nil
}

// MergeAuto finds redundant entities and merges each group. Advisory groups
// are merged only when IncludeAdvisory is set. Re-running after a completed
// merge finds one entity per normalized name and performs no mutation.
func (r *Resolver) MergeAuto(ctx context.Context) (*PassResult, error) {
	groups, err := r.FindRedundantEntities(ctx, r.Threshold)
	if err != nil {
		return nil, err
	}

	merge := groups[:0]
	for _, g := range groups {
		if g.Advisory && !r.IncludeAdvisory {
			continue
		}
		merge = append(merge, g)
	}
	return r.MergeGroups(ctx, merge), nil
}

// MergeGroupIDs merges explicit caller-supplied groups of entity ids
func (r *Resolver) MergeGroupIDs(ctx context.Context, groupIDs [][]string) *PassResult {
	groups := make([]CandidateGroup, 0, len(groupIDs))
	for _, ids := range groupIDs {
		groups = append(groups, CandidateGroup{IDs: ids})
	}
	return r.MergeGroups(ctx, groups)
}

// MergeGroups merges each candidate group in its own transaction. A failed
// or conflicted group never affects the others; a retry reprocesses only
// the failed groups because the merge is idempotent.
func (r *Resolver) MergeGroups(ctx context.Context, groups []CandidateGroup) *PassResult {
	result := newPassResult(OpMergeEntities)

	for _, group := range groups {
		if ctx.Err() != nil {
			break
		}
		if len(group.IDs) < 2 {
			result.addSkip(firstID(group.IDs), "group has fewer than two members")
			continue
		}

		survivorID, donorIDs, err := r.mergeGroup(ctx, group)
		if err != nil {
			if errors.IsConflict(err) {
				result.addSkip(firstID(group.IDs), err.Error())
				r.logger.Warn("Merge group skipped on conflict", zap.Strings("ids", group.IDs), zap.Error(err))
				continue
			}
			result.addError(firstID(group.IDs), err)
			continue
		}

		result.Succeeded++
		result.TouchedIDs = append(result.TouchedIDs, survivorID)
		result.DeletedIDs = append(result.DeletedIDs, donorIDs...)
		r.logger.Info("Entities merged",
			zap.String("survivor", survivorID),
			zap.Strings("donors", donorIDs),
		)
	}
	return result
}

// mergeGroup runs one whole group merge inside a single transaction:
// re-check membership, re-point relationships donor by donor, delete donors.
func (r *Resolver) mergeGroup(ctx context.Context, group CandidateGroup) (survivorID string, donorIDs []string, err error) {
	ids := group.IDs
	snapshotNames := make(map[string]string, len(ids))
	if len(group.Names) == len(ids) {
		for i, id := range ids {
			snapshotNames[id] = NormalizeName(group.Names[i])
		}
	}

	err = r.store.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		// Optimistic re-check: every member must still exist under the name
		// it was grouped by. A deleted member or a rename since the snapshot
		// means the group is stale; conflict, never a partial merge. The
		// ordering re-derives the survivor from current state, so two
		// concurrent resolver runs pick the same one.
		res, err := tx.Run(ctx, `
			MATCH (e:Entity)
			WHERE e.id IN $ids
			RETURN e.id as id, e.name as name
			ORDER BY e.created_at ASC, e.id ASC
		`, map[string]interface{}{"ids": ids})
		if err != nil {
			return err
		}
		var present []string
		for res.Next(ctx) {
			record := res.Record()
			id := graph.StringFrom(record, "id")
			if want, ok := snapshotNames[id]; ok {
				if NormalizeName(graph.StringFrom(record, "name")) != want {
					return errors.NewConflict(id, "entity renamed since read")
				}
			}
			present = append(present, id)
		}
		if err := res.Err(); err != nil {
			return err
		}
		if len(present) != len(ids) {
			return errors.NewConflict(firstID(ids), "group members changed since read")
		}

		survivorID = present[0]
		donorIDs = present[1:]

		for _, donorID := range donorIDs {
			// Incoming MENTIONS from messages and notes
			if _, err := tx.Run(ctx, `
				MATCH (donor:Entity {id: $donorID})
				MATCH (survivor:Entity {id: $survivorID})
				OPTIONAL MATCH (src)-[:MENTIONS]->(donor)
				WITH survivor, collect(DISTINCT src) as srcs
				FOREACH (s IN srcs | MERGE (s)-[:MENTIONS]->(survivor))
			`, map[string]interface{}{"donorID": donorID, "survivorID": survivorID}); err != nil {
				return err
			}

			// RELATED_TO in either direction; self-loops onto the survivor
			// are dropped, duplicate edges coalesce under MERGE
			if _, err := tx.Run(ctx, `
				MATCH (donor:Entity {id: $donorID})
				MATCH (survivor:Entity {id: $survivorID})
				OPTIONAL MATCH (donor)-[:RELATED_TO]-(other:Entity)
				WITH survivor, collect(DISTINCT other) as others
				FOREACH (o IN others |
					FOREACH (_ IN CASE WHEN o.id <> survivor.id THEN [1] ELSE [] END |
						MERGE (survivor)-[:RELATED_TO]-(o)
					)
				)
			`, map[string]interface{}{"donorID": donorID, "survivorID": survivorID}); err != nil {
				return err
			}

			if _, err := tx.Run(ctx, `
				MATCH (donor:Entity {id: $donorID})
				DETACH DELETE donor
			`, map[string]interface{}{"donorID": donorID}); err != nil {
				return err
			}
		}
		return nil
	})
	return survivorID, donorIDs, err
}

func (r *Resolver) loadEntities(ctx context.Context) ([]entityRecord, error) {
	records, err := r.store.ReadQuery(ctx, `
		MATCH (e:Entity)
		RETURN e.id as id, e.name as name, e.created_at as created_at
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}

	entities := make([]entityRecord, 0, len(records))
	for _, record := range records {
		entities = append(entities, entityRecord{
			ID:        graph.StringFrom(record, "id"),
			Name:      graph.StringFrom(record, "name"),
			CreatedAt: graph.TimeFrom(record, "created_at"),
		})
	}
	return entities, nil
}

// groupEntities groups by normalized name, then clusters the remaining
// distinct names whose similarity clears the threshold into advisory groups.
func groupEntities(entities []entityRecord, scorer Scorer, threshold float64) []CandidateGroup {
	byNorm := make(map[string][]entityRecord)
	var normOrder []string
	for _, e := range entities {
		norm := NormalizeName(e.Name)
		if norm == "" {
			continue
		}
		if _, seen := byNorm[norm]; !seen {
			normOrder = append(normOrder, norm)
		}
		byNorm[norm] = append(byNorm[norm], e)
	}

	var groups []CandidateGroup
	for _, norm := range normOrder {
		members := byNorm[norm]
		if len(members) > 1 {
			groups = append(groups, toGroup(members, false))
		}
	}

	// Advisory pass: cluster distinct normalized names by pairwise score.
	if threshold > 0 && threshold <= 1 {
		parent := make(map[string]string, len(normOrder))
		var find func(string) string
		find = func(x string) string {
			if parent[x] != x {
				parent[x] = find(parent[x])
			}
			return parent[x]
		}
		for _, n := range normOrder {
			parent[n] = n
		}
		for i := 0; i < len(normOrder); i++ {
			for j := i + 1; j < len(normOrder); j++ {
				if scorer(normOrder[i], normOrder[j]) >= threshold {
					parent[find(normOrder[i])] = find(normOrder[j])
				}
			}
		}

		clusters := make(map[string][]entityRecord)
		var clusterOrder []string
		for _, n := range normOrder {
			root := find(n)
			if _, seen := clusters[root]; !seen {
				clusterOrder = append(clusterOrder, root)
			}
			clusters[root] = append(clusters[root], byNorm[n]...)
		}
		for _, root := range clusterOrder {
			members := clusters[root]
			distinct := distinctNormalized(members)
			// Only clusters spanning more than one normalized name are new
			// information; single-name clusters are covered by the exact pass.
			if distinct > 1 {
				groups = append(groups, toGroup(members, true))
			}
		}
	}
	return groups
}

// chooseSurvivor picks the member with the earliest created_at, breaking
// ties by lexicographically smallest id
func chooseSurvivor(members []entityRecord) entityRecord {
	sorted := make([]entityRecord, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}

func toGroup(members []entityRecord, advisory bool) CandidateGroup {
	survivor := chooseSurvivor(members)
	group := CandidateGroup{Advisory: advisory}
	group.IDs = append(group.IDs, survivor.ID)
	group.Names = append(group.Names, survivor.Name)
	for _, m := range members {
		if m.ID == survivor.ID {
			continue
		}
		group.IDs = append(group.IDs, m.ID)
		group.Names = append(group.Names, m.Name)
	}
	return group
}

func distinctNormalized(members []entityRecord) int {
	seen := make(map[string]bool)
	for _, m := range members {
		seen[NormalizeName(m.Name)] = true
	}
	return len(seen)
}

func firstID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
