package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noteAt(id, content string, daysAgo int, entities, tags []string) noteRecord {
	return noteRecord{
		ID:        id,
		Content:   content,
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo),
		Entities:  entities,
		Tags:      tags,
	}
}

func TestDuplicateNoteGroups_SurvivorFirst(t *testing.T) {
	notes := []noteRecord{
		noteAt("n2", "Chose Neo4j because the data is relationship heavy", 1, nil, nil),
		noteAt("n1", "Chose Neo4j because the data is relationship heavy.", 5, nil, nil),
		noteAt("n3", "Prefers Go for backend services", 3, nil, nil),
	}

	groups := duplicateNoteGroups(notes, OverlapScorer, 0.9)

	if assert.Len(t, groups, 1) {
		assert.Equal(t, "n1", groups[0][0].ID, "earliest note survives")
		assert.Equal(t, "n2", groups[0][1].ID)
	}
}

func TestDuplicateNoteGroups_NoDuplicates(t *testing.T) {
	notes := []noteRecord{
		noteAt("n1", "Likes hiking on weekends", 2, nil, nil),
		noteAt("n2", "Allergic to shellfish", 1, nil, nil),
	}
	assert.Empty(t, duplicateNoteGroups(notes, OverlapScorer, 0.85))
}

func TestSharedNames(t *testing.T) {
	shared := sharedNames([]string{"Go", "Neo4j", "Python"}, []string{"Neo4j", "Go", "Rust"})
	assert.Equal(t, []string{"Go", "Neo4j"}, shared)

	assert.Empty(t, sharedNames([]string{"Go"}, []string{"Rust"}))
	assert.Empty(t, sharedNames(nil, []string{"Go"}))
}

func TestDominantName(t *testing.T) {
	freq := map[string]int{"Go": 5, "Neo4j": 2, "Python": 5}

	assert.Equal(t, "Go", dominantName([]string{"Neo4j", "Go"}, freq))
	// Tie between Go and Python goes to the lexicographically smaller name
	assert.Equal(t, "Go", dominantName([]string{"Python", "Go"}, freq))
	assert.Equal(t, "", dominantName(nil, freq))
}

func TestUnionStrings(t *testing.T) {
	out := unionStrings([]string{"a", "b"}, []string{"b", "c", ""})
	assert.Equal(t, []string{"a", "b", "c"}, out)
}
