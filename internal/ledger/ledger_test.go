package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"

	"graphmem/internal/graph"
	"graphmem/pkg/errors"
)

func TestAppendMessage_Validation(t *testing.T) {
	led := NewLedger(nil)
	ctx := context.Background()

	_, err := led.AppendMessage(ctx, "", RoleUser, "hello", time.Now())
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = led.AppendMessage(ctx, "s1", "operator", "hello", time.Now())
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = led.AppendMessage(ctx, "s1", RoleUser, "   ", time.Now())
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestListMessages_Validation(t *testing.T) {
	led := NewLedger(nil)

	_, err := led.ListMessages(context.Background(), "", 0, time.Time{})
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestDeleteSession_Validation(t *testing.T) {
	led := NewLedger(nil)

	err := led.DeleteSession(context.Background(), "")
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

// Integration tests below require a running Neo4j instance.

func createTestDriver() (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext("bolt://localhost:7687", neo4j.BasicAuth("neo4j", "password", ""))
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return driver, nil
}

func TestLedger_AppendAndListOrdering(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	led := NewLedger(graph.NewStore(driver))
	sessionID := "itest-ledger-" + time.Now().Format("20060102150405")
	defer func() { _ = led.DeleteSession(ctx, sessionID) }()

	// Same timestamp on every turn forces the seq tie-break.
	ts := time.Now().UTC().Truncate(time.Second)
	contents := []string{"first", "second", "third", "fourth"}
	for i, content := range contents {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msg, err := led.AppendMessage(ctx, sessionID, role, content, ts)
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
		if msg.ID == "" {
			t.Fatal("AppendMessage returned empty id")
		}
	}

	messages, err := led.ListMessages(ctx, sessionID, 0, time.Time{})
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != len(contents) {
		t.Fatalf("Expected %d messages, got %d", len(contents), len(messages))
	}
	for i, msg := range messages {
		if msg.Content != contents[i] {
			t.Errorf("Position %d: expected %q, got %q", i, contents[i], msg.Content)
		}
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Seq <= messages[i-1].Seq {
			t.Errorf("Sequence numbers not strictly increasing: %d then %d",
				messages[i-1].Seq, messages[i].Seq)
		}
	}

	count, err := led.MessageCount(ctx, sessionID)
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if count != int64(len(contents)) {
		t.Errorf("Expected count %d, got %d", len(contents), count)
	}

	recent, err := led.Recent(ctx, sessionID, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "third" || recent[1].Content != "fourth" {
		t.Errorf("Recent returned wrong window: %+v", recent)
	}
}

func TestLedger_DeleteSessionCascades(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	store := graph.NewStore(driver)
	led := NewLedger(store)
	sessionID := "itest-cascade-" + time.Now().Format("20060102150405")

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		msg, err := led.AppendMessage(ctx, sessionID, RoleUser, "turn", time.Now())
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	if err := led.DeleteSession(ctx, sessionID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	records, err := store.ReadQuery(ctx, `
		MATCH (m:Message) WHERE m.id IN $ids RETURN m.id as id
	`, map[string]interface{}{"ids": ids})
	if err != nil {
		t.Fatalf("ReadQuery failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no surviving messages, found %d", len(records))
	}

	// Deleting again reports the missing session.
	err = led.DeleteSession(ctx, sessionID)
	if !errors.IsConflict(err) {
		t.Errorf("Expected conflict for missing session, got %v", err)
	}
}
