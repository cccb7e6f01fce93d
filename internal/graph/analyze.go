package graph

import (
	"context"
)

// AnalyzeGraph reports per-label node counts, per-type relationship counts
// and per-label orphan counts.
func (s *Store) AnalyzeGraph(ctx context.Context) (*GraphStats, error) {
	stats := &GraphStats{
		NodeCounts:         make(map[string]int64),
		RelationshipCounts: make(map[string]int64),
		OrphanCounts:       make(map[string]int64),
	}

	nodeRecords, err := s.ReadQuery(ctx, `
		MATCH (n)
		WITH labels(n) as label_list, count(n) as node_count
		UNWIND label_list as label
		WITH label, sum(node_count) as count
		WHERE count > 0
		RETURN label, count
		ORDER BY count DESC
	`, nil)
	if err != nil {
		return nil, err
	}
	for _, record := range nodeRecords {
		stats.NodeCounts[getStringFromRecord(record, "label")] = getInt64FromRecord(record, "count")
	}

	relRecords, err := s.ReadQuery(ctx, `
		MATCH ()-[r]->()
		RETURN type(r) as rel_type, count(r) as count
		ORDER BY count DESC
	`, nil)
	if err != nil {
		return nil, err
	}
	for _, record := range relRecords {
		stats.RelationshipCounts[getStringFromRecord(record, "rel_type")] = getInt64FromRecord(record, "count")
	}

	orphanRecords, err := s.ReadQuery(ctx, `
		MATCH (n)
		WHERE NOT (n)--()
		RETURN labels(n)[0] as label, count(n) as orphan_count
	`, nil)
	if err != nil {
		return nil, err
	}
	for _, record := range orphanRecords {
		stats.OrphanCounts[getStringFromRecord(record, "label")] = getInt64FromRecord(record, "orphan_count")
	}

	return stats, nil
}
