package graph

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"

	"graphmem/pkg/errors"
)

func TestUpsertNode_Validation(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	err := store.UpsertNode(ctx, "Widget", "w1", nil)
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	err = store.UpsertNode(ctx, KindEntity, "", nil)
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestUpsertRelationship_Validation(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	err := store.UpsertRelationship(ctx, "LINKED_TO", "a", "b", nil)
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	err = store.UpsertRelationship(ctx, RelMentions, "", "b", nil)
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestDeleteNode_Validation(t *testing.T) {
	store := NewStore(nil)

	err := store.DeleteNode(context.Background(), "", false)
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestNodeKinds(t *testing.T) {
	assert.True(t, IsNodeKind(KindSession))
	assert.True(t, IsNodeKind(KindNote))
	assert.False(t, IsNodeKind("session"))
	assert.False(t, IsNodeKind(""))

	assert.True(t, IsRelationshipType(RelHasMessage))
	assert.True(t, IsRelationshipType(RelRelatedTo))
	assert.False(t, IsRelationshipType("has_message"))
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

func TestStore_UpsertAndDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	store := NewStore(driver)
	prefix := "itest-store-" + time.Now().Format("20060102150405")
	noteID := prefix + "-n1"
	entityID := prefix + "-e1"
	defer func() {
		_ = store.DeleteNode(ctx, noteID, true)
		_ = store.DeleteNode(ctx, entityID, true)
	}()

	if err := store.UpsertNode(ctx, KindNote, noteID, map[string]interface{}{"content": "original"}); err != nil {
		t.Fatalf("UpsertNode failed: %v", err)
	}
	// Second upsert updates attrs but keeps created_at.
	if err := store.UpsertNode(ctx, KindNote, noteID, map[string]interface{}{"content": "updated"}); err != nil {
		t.Fatalf("UpsertNode update failed: %v", err)
	}

	records, err := store.ReadQuery(ctx, `
		MATCH (n:Note {id: $id})
		RETURN n.content as content, n.created_at as created_at
	`, map[string]interface{}{"id": noteID})
	if err != nil {
		t.Fatalf("ReadQuery failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 note, got %d", len(records))
	}
	if got := StringFrom(records[0], "content"); got != "updated" {
		t.Errorf("Expected updated content, got %q", got)
	}
	if TimeFrom(records[0], "created_at").IsZero() {
		t.Error("created_at not set on create")
	}

	if err := store.UpsertNode(ctx, KindEntity, entityID, map[string]interface{}{"name": prefix}); err != nil {
		t.Fatalf("UpsertNode failed: %v", err)
	}
	if err := store.UpsertRelationship(ctx, RelMentions, noteID, entityID, nil); err != nil {
		t.Fatalf("UpsertRelationship failed: %v", err)
	}

	// Relationship against a missing endpoint is reported, not silently dropped.
	err = store.UpsertRelationship(ctx, RelMentions, noteID, prefix+"-missing", nil)
	if !errors.IsConflict(err) {
		t.Errorf("Expected conflict for missing endpoint, got %v", err)
	}

	// Non-cascade delete refuses while the node is referenced.
	err = store.DeleteNode(ctx, entityID, false)
	if !errors.IsReferential(err) {
		t.Errorf("Expected referential error, got %v", err)
	}

	if err := store.DeleteNode(ctx, entityID, true); err != nil {
		t.Fatalf("Cascade delete failed: %v", err)
	}
	if err := store.DeleteNode(ctx, noteID, false); err != nil {
		t.Fatalf("Delete of unreferenced node failed: %v", err)
	}

	err = store.DeleteNode(ctx, noteID, false)
	if !errors.IsConflict(err) {
		t.Errorf("Expected conflict for missing node, got %v", err)
	}
}

func TestStore_AnalyzeGraph(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	store := NewStore(driver)
	prefix := "itest-analyze-" + time.Now().Format("20060102150405")
	id := prefix + "-e1"
	if err := store.UpsertNode(ctx, KindEntity, id, map[string]interface{}{"name": prefix}); err != nil {
		t.Fatalf("UpsertNode failed: %v", err)
	}
	defer func() { _ = store.DeleteNode(ctx, id, true) }()

	stats, err := store.AnalyzeGraph(ctx)
	if err != nil {
		t.Fatalf("AnalyzeGraph failed: %v", err)
	}
	if stats.NodeCounts[KindEntity] < 1 {
		t.Errorf("Expected at least one Entity, got %d", stats.NodeCounts[KindEntity])
	}
	// The freshly created unconnected entity counts as an orphan.
	if stats.OrphanCounts[KindEntity] < 1 {
		t.Errorf("Expected at least one orphan Entity, got %d", stats.OrphanCounts[KindEntity])
	}
}
