package maintenance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphmem/internal/graph"
	"graphmem/pkg/errors"
	"graphmem/pkg/logger"
)

// noteRecord is the snapshot of one note and its neighborhood taken at the
// start of a consolidation pass
type noteRecord struct {
	ID         string
	Content    string
	CreatedAt  time.Time
	Entities   []string // entity names mentioned
	Tags       []string // tag names
	Categories []string // category ids the note already belongs to
}

// Consolidator groups notes under categories by shared entities or tags and
// merges near-duplicate notes
type Consolidator struct {
	store  *graph.Store
	scorer Scorer
	// DupThreshold is the content-similarity bound above which two notes are
	// merged rather than grouped
	DupThreshold float64
	logger       *zap.Logger
}

// NewConsolidator creates a topic consolidator with an injected content
// similarity scorer
func NewConsolidator(store *graph.Store, scorer Scorer, dupThreshold float64) *Consolidator {
	if scorer == nil {
		scorer = OverlapScorer
	}
	return &Consolidator{
		store:        store,
		scorer:       scorer,
		DupThreshold: dupThreshold,
		logger:       logger.Get(),
	}
}

// ConsolidateNotes merges near-duplicate notes, then links notes sharing at
// least minOverlap entities (or tags) under a common category. Read once,
// write per group; idempotent on re-run.
func (c *Consolidator) ConsolidateNotes(ctx context.Context, minOverlap int) (*PassResult, error) {
	if minOverlap < 1 {
		return nil, errors.NewValidation("min_overlap", "must be at least 1")
	}

	notes, err := c.loadNotes(ctx)
	if err != nil {
		return nil, err
	}

	result := newPassResult(OpConsolidateNotes)

	// Pass 1: merge near-duplicate notes.
	survivors := c.mergeDuplicates(ctx, notes, result)

	// Pass 2: group the surviving notes under shared categories.
	c.groupByOverlap(ctx, survivors, minOverlap, result)

	return result, nil
}

// mergeDuplicates collapses duplicate-content groups, one transaction per
// group, and returns the surviving notes with their donors' relationships
// folded into the snapshot.
func (c *Consolidator) mergeDuplicates(ctx context.Context, notes []noteRecord, result *PassResult) []noteRecord {
	groups := duplicateNoteGroups(notes, c.scorer, c.DupThreshold)

	merged := make(map[string]bool) // donor ids removed in this pass
	folded := make(map[string]*noteRecord, len(notes))
	for i := range notes {
		folded[notes[i].ID] = &notes[i]
	}

	for _, group := range groups {
		if ctx.Err() != nil {
			break
		}

		survivor := group[0]
		donors := group[1:]
		donorIDs := make([]string, 0, len(donors))
		for _, d := range donors {
			donorIDs = append(donorIDs, d.ID)
		}

		if err := c.mergeNoteGroup(ctx, survivor.ID, donorIDs); err != nil {
			if errors.IsConflict(err) {
				result.addSkip(survivor.ID, err.Error())
				c.logger.Warn("Note merge skipped on conflict", zap.String("survivor", survivor.ID), zap.Error(err))
				continue
			}
			result.addError(survivor.ID, err)
			continue
		}

		result.Succeeded++
		result.TouchedIDs = append(result.TouchedIDs, survivor.ID)
		result.DeletedIDs = append(result.DeletedIDs, donorIDs...)
		c.logger.Info("Duplicate notes merged",
			zap.String("survivor", survivor.ID),
			zap.Strings("donors", donorIDs),
		)

		// Fold donor relationships into the surviving snapshot entry.
		s := folded[survivor.ID]
		for _, d := range donors {
			merged[d.ID] = true
			s.Entities = unionStrings(s.Entities, d.Entities)
			s.Tags = unionStrings(s.Tags, d.Tags)
			s.Categories = unionStrings(s.Categories, d.Categories)
		}
	}

	var out []noteRecord
	for _, n := range notes {
		if !merged[n.ID] {
			out = append(out, *folded[n.ID])
		}
	}
	return out
}

// mergeNoteGroup moves the donors' distinguishing relationships onto the
// survivor and deletes the donors, all in one transaction with an existence
// re-check first.
func (c *Consolidator) mergeNoteGroup(ctx context.Context, survivorID string, donorIDs []string) error {
	all := append([]string{survivorID}, donorIDs...)

	return c.store.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (n:Note)
			WHERE n.id IN $ids
			RETURN count(n) as present
		`, map[string]interface{}{"ids": all})
		if err != nil {
			return err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return err
		}
		if graph.Int64From(record, "present") != int64(len(all)) {
			return errors.NewConflict(survivorID, "note group changed since read")
		}

		for _, donorID := range donorIDs {
			if _, err := tx.Run(ctx, `
				MATCH (donor:Note {id: $donorID})
				MATCH (survivor:Note {id: $survivorID})
				OPTIONAL MATCH (donor)-[:MENTIONS]->(e:Entity)
				WITH donor, survivor, collect(DISTINCT e) as ents
				FOREACH (e IN ents | MERGE (survivor)-[:MENTIONS]->(e))
				WITH donor, survivor
				OPTIONAL MATCH (donor)-[:HAS_TAG]->(t:Tag)
				WITH donor, survivor, collect(DISTINCT t) as tags
				FOREACH (t IN tags | MERGE (survivor)-[:HAS_TAG]->(t))
				WITH donor, survivor
				OPTIONAL MATCH (donor)-[:BELONGS_TO]->(cat:Category)
				WITH donor, survivor, collect(DISTINCT cat) as cats
				FOREACH (cat IN cats | MERGE (survivor)-[:BELONGS_TO]->(cat))
				DETACH DELETE donor
			`, map[string]interface{}{"donorID": donorID, "survivorID": survivorID}); err != nil {
				return err
			}
		}
		return nil
	})
}

// groupByOverlap links each qualifying note pair under a shared category
// named after the dominant shared entity or tag.
func (c *Consolidator) groupByOverlap(ctx context.Context, notes []noteRecord, minOverlap int, result *PassResult) {
	// Frequency of each entity/tag name across the snapshot decides
	// which shared name "dominates" a pair.
	freq := make(map[string]int)
	for _, n := range notes {
		for _, e := range n.Entities {
			freq[e]++
		}
		for _, t := range n.Tags {
			freq[t]++
		}
	}

	for i := 0; i < len(notes); i++ {
		for j := i + 1; j < len(notes); j++ {
			if ctx.Err() != nil {
				return
			}
			a, b := &notes[i], &notes[j]

			shared := sharedNames(a.Entities, b.Entities)
			if len(shared) < minOverlap {
				shared = sharedNames(a.Tags, b.Tags)
			}
			if len(shared) < minOverlap {
				continue
			}
			if len(sharedNames(a.Categories, b.Categories)) > 0 {
				continue // already grouped together
			}

			name := dominantName(shared, freq)
			categoryID, err := c.linkUnderCategory(ctx, a.ID, b.ID, name)
			if err != nil {
				if errors.IsConflict(err) {
					result.addSkip(a.ID, err.Error())
					continue
				}
				result.addError(a.ID, err)
				continue
			}

			result.Succeeded++
			result.TouchedIDs = append(result.TouchedIDs, a.ID, b.ID)
			a.Categories = append(a.Categories, categoryID)
			b.Categories = append(b.Categories, categoryID)
			c.logger.Info("Notes grouped under category",
				zap.String("category", name),
				zap.String("note1", a.ID),
				zap.String("note2", b.ID),
			)
		}
	}
}

// linkUnderCategory creates or reuses the named category and links both
// notes to it in one transaction.
func (c *Consolidator) linkUnderCategory(ctx context.Context, noteID1, noteID2, name string) (string, error) {
	var categoryID string
	err := c.store.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (n1:Note {id: $noteID1})
			MATCH (n2:Note {id: $noteID2})
			MERGE (c:Category {name: $name})
			ON CREATE SET c.id = $categoryID, c.created_at = datetime($now)
			MERGE (n1)-[:BELONGS_TO]->(c)
			MERGE (n2)-[:BELONGS_TO]->(c)
			RETURN c.id as id
		`, map[string]interface{}{
			"noteID1":    noteID1,
			"noteID2":    noteID2,
			"name":       name,
			"categoryID": uuid.New().String(),
			"now":        time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return err
			}
			return errors.NewConflict(noteID1, "note pair changed since read")
		}
		categoryID = graph.StringFrom(res.Record(), "id")
		return nil
	})
	return categoryID, err
}

func (c *Consolidator) loadNotes(ctx context.Context) ([]noteRecord, error) {
	records, err := c.store.ReadQuery(ctx, `
		MATCH (n:Note)
		OPTIONAL MATCH (n)-[:MENTIONS]->(e:Entity)
		OPTIONAL MATCH (n)-[:HAS_TAG]->(t:Tag)
		OPTIONAL MATCH (n)-[:BELONGS_TO]->(c:Category)
		RETURN n.id as id, n.content as content, n.created_at as created_at,
		       collect(DISTINCT e.name) as entities,
		       collect(DISTINCT t.name) as tags,
		       collect(DISTINCT c.id) as categories
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load notes: %w", err)
	}

	notes := make([]noteRecord, 0, len(records))
	for _, record := range records {
		notes = append(notes, noteRecord{
			ID:         graph.StringFrom(record, "id"),
			Content:    graph.StringFrom(record, "content"),
			CreatedAt:  graph.TimeFrom(record, "created_at"),
			Entities:   graph.StringSliceFrom(record, "entities"),
			Tags:       graph.StringSliceFrom(record, "tags"),
			Categories: graph.StringSliceFrom(record, "categories"),
		})
	}
	return notes, nil
}

// duplicateNoteGroups clusters notes whose content similarity clears the
// threshold. Each returned group is ordered survivor-first: earliest
// created_at, ties broken by smallest id.
func duplicateNoteGroups(notes []noteRecord, scorer Scorer, threshold float64) [][]noteRecord {
	if threshold <= 0 || threshold > 1 || len(notes) < 2 {
		return nil
	}

	parent := make([]int, len(notes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	for i := 0; i < len(notes); i++ {
		for j := i + 1; j < len(notes); j++ {
			if scorer(notes[i].Content, notes[j].Content) >= threshold {
				parent[find(i)] = find(j)
			}
		}
	}

	clusters := make(map[int][]noteRecord)
	var order []int
	for i := range notes {
		root := find(i)
		if _, seen := clusters[root]; !seen {
			order = append(order, root)
		}
		clusters[root] = append(clusters[root], notes[i])
	}

	var groups [][]noteRecord
	for _, root := range order {
		group := clusters[root]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].ID < group[j].ID
		})
		groups = append(groups, group)
	}
	return groups
}

// sharedNames returns the names present in both slices, sorted for
// determinism
func sharedNames(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		if s != "" {
			seen[s] = true
		}
	}
	var shared []string
	for _, s := range b {
		if seen[s] {
			shared = append(shared, s)
			seen[s] = false
		}
	}
	sort.Strings(shared)
	return shared
}

// dominantName picks the shared name occurring most often across the
// snapshot; ties go to the lexicographically smallest
func dominantName(shared []string, freq map[string]int) string {
	best := ""
	for _, s := range shared {
		if best == "" || freq[s] > freq[best] || (freq[s] == freq[best] && s < best) {
			best = s
		}
	}
	return best
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
