package maintenance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"graphmem/internal/graph"
)

func messageAgedDays(id string, seq int64, now time.Time, ageDays int) graph.Message {
	return graph.Message{
		ID:        id,
		Seq:       seq,
		Timestamp: now.AddDate(0, 0, -ageDays),
	}
}

func TestRetentionDeleteSet_CountBased(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	var messages []graph.Message
	for i := 1; i <= 8; i++ {
		// m1 is the oldest, m8 the newest
		messages = append(messages, messageAgedDays(fmt.Sprintf("m%d", i), int64(i), now, 9-i))
	}

	deleted := retentionDeleteSet(messages, RetentionPolicy{MaxMessagesPerSession: 5}, now)

	assert.ElementsMatch(t, []string{"m3", "m2", "m1"}, deleted)

	// Re-pruning the retained set is a no-op
	var retained []graph.Message
	for _, m := range messages {
		if m.ID != "m1" && m.ID != "m2" && m.ID != "m3" {
			retained = append(retained, m)
		}
	}
	assert.Empty(t, retentionDeleteSet(retained, RetentionPolicy{MaxMessagesPerSession: 5}, now))
}

func TestRetentionDeleteSet_AgeBased(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	var messages []graph.Message
	for i := 1; i <= 10; i++ {
		// m1 is 1 day old ... m10 is 10 days old
		messages = append(messages, messageAgedDays(fmt.Sprintf("m%d", i), int64(11-i), now, i))
	}

	deleted := retentionDeleteSet(messages, RetentionPolicy{MaxAgeDays: 5}, now)

	assert.ElementsMatch(t, []string{"m6", "m7", "m8", "m9", "m10"}, deleted)
}

func TestRetentionDeleteSet_UnionOfBothFacets(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	messages := []graph.Message{
		messageAgedDays("old", 1, now, 30),
		messageAgedDays("mid", 2, now, 3),
		messageAgedDays("new", 3, now, 1),
	}

	deleted := retentionDeleteSet(messages, RetentionPolicy{MaxMessagesPerSession: 2, MaxAgeDays: 7}, now)

	// "old" fails both facets, "mid" and "new" survive both
	assert.Equal(t, []string{"old"}, deleted)
}

func TestRetentionDeleteSet_TimestampTieBreaksOnSeq(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	ts := now.Add(-time.Hour)
	messages := []graph.Message{
		{ID: "a", Seq: 1, Timestamp: ts},
		{ID: "b", Seq: 2, Timestamp: ts},
		{ID: "c", Seq: 3, Timestamp: ts},
	}

	deleted := retentionDeleteSet(messages, RetentionPolicy{MaxMessagesPerSession: 2}, now)

	// Lowest sequence number is the oldest insertion
	assert.Equal(t, []string{"a"}, deleted)
}

func TestRetentionDeleteSet_Empty(t *testing.T) {
	now := time.Now()
	assert.Empty(t, retentionDeleteSet(nil, RetentionPolicy{MaxMessagesPerSession: 5}, now))
}
