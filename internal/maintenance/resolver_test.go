package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func entityAt(id, name string, daysAgo int) entityRecord {
	return entityRecord{
		ID:        id,
		Name:      name,
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo),
	}
}

func TestGroupEntities_ExactNormalizedDuplicates(t *testing.T) {
	entities := []entityRecord{
		entityAt("e2", "python ", 1),
		entityAt("e1", "Python", 5),
		entityAt("e3", "Go", 3),
	}

	groups := groupEntities(entities, OverlapScorer, 0.99)

	if assert.Len(t, groups, 1) {
		assert.False(t, groups[0].Advisory)
		// Survivor first: e1 is older
		assert.Equal(t, []string{"e1", "e2"}, groups[0].IDs)
		assert.Equal(t, []string{"Python", "python "}, groups[0].Names)
	}
}

func TestGroupEntities_AdvisoryCluster(t *testing.T) {
	entities := []entityRecord{
		entityAt("e1", "postgresql", 5),
		entityAt("e2", "postgres", 1),
		entityAt("e3", "redis", 3),
	}

	groups := groupEntities(entities, OverlapScorer, 0.75)

	if assert.Len(t, groups, 1) {
		assert.True(t, groups[0].Advisory)
		assert.ElementsMatch(t, []string{"e1", "e2"}, groups[0].IDs)
		assert.Equal(t, "e1", groups[0].IDs[0], "older entity survives")
	}
}

func TestGroupEntities_NoCandidates(t *testing.T) {
	entities := []entityRecord{
		entityAt("e1", "Python", 5),
		entityAt("e2", "Go", 3),
	}
	assert.Empty(t, groupEntities(entities, OverlapScorer, 0.95))
}

func TestChooseSurvivor_EarliestCreated(t *testing.T) {
	members := []entityRecord{
		entityAt("e9", "Python", 1),
		entityAt("e5", "python", 7),
		entityAt("e2", "PYTHON", 3),
	}
	assert.Equal(t, "e5", chooseSurvivor(members).ID)
}

func TestChooseSurvivor_TieBreaksOnSmallestID(t *testing.T) {
	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	members := []entityRecord{
		{ID: "e7", Name: "python", CreatedAt: created},
		{ID: "e3", Name: "Python", CreatedAt: created},
	}
	assert.Equal(t, "e3", chooseSurvivor(members).ID)
}

func TestGroupEntities_BlankNamesIgnored(t *testing.T) {
	entities := []entityRecord{
		entityAt("e1", "  ", 2),
		entityAt("e2", "", 1),
	}
	assert.Empty(t, groupEntities(entities, OverlapScorer, 0.9))
}
