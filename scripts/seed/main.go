// Seeds a demo graph for exercising the maintenance passes by hand:
// a couple of sessions with message history, entities including
// near-duplicate names, and overlapping notes with tags.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphmem/internal/graph"
	"graphmem/internal/ledger"
	"graphmem/internal/notes"
	"graphmem/pkg/config"
	"graphmem/pkg/logger"
)

func main() {
	reset := flag.Bool("reset", false, "wipe the whole graph before seeding")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	store := graph.NewStore(driver)
	if *reset {
		if _, err := store.ReadWriteQuery(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
			log.Fatal("Failed to reset graph", zap.Error(err))
		}
		log.Info("Graph wiped")
	}
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure schema", zap.Error(err))
	}

	led := ledger.NewLedger(store)
	noteSvc := notes.NewService(store)

	// Two sessions of conversation history.
	base := time.Now().Add(-10 * 24 * time.Hour)
	turns := []struct {
		session, role, content string
		age                    time.Duration
	}{
		{"s-demo-1", ledger.RoleUser, "What's a good language for backend services?", 0},
		{"s-demo-1", ledger.RoleAssistant, "Go and Python are both solid choices for backend work.", time.Minute},
		{"s-demo-1", ledger.RoleUser, "I already know Python, tell me about Go.", 2 * time.Minute},
		{"s-demo-1", ledger.RoleAssistant, "Go compiles to static binaries and has first-class concurrency.", 3 * time.Minute},
		{"s-demo-2", ledger.RoleUser, "Remind me what we decided about the database.", 24 * time.Hour},
		{"s-demo-2", ledger.RoleAssistant, "You chose Neo4j for the relationship-heavy data.", 24*time.Hour + time.Minute},
	}
	for _, turn := range turns {
		if _, err := led.AppendMessage(ctx, turn.session, turn.role, turn.content, base.Add(turn.age)); err != nil {
			log.Fatal("Failed to seed message", zap.Error(err))
		}
	}

	// Near-duplicate entities for the resolver to find.
	seedEntities := []struct{ name, typ string }{
		{"Python", "language"},
		{"python ", "language"},
		{"Go", "language"},
		{"Neo4j", "database"},
		{"neo4j", "database"},
	}
	entityIDs := make(map[string]string, len(seedEntities))
	for _, e := range seedEntities {
		entity, err := noteSvc.CreateEntity(ctx, "", e.name, e.typ)
		if err != nil {
			log.Fatal("Failed to seed entity", zap.Error(err))
		}
		entityIDs[e.name] = entity.ID
	}
	if err := noteSvc.RelateEntities(ctx, entityIDs["Go"], entityIDs["Neo4j"]); err != nil {
		log.Fatal("Failed to relate entities", zap.Error(err))
	}

	// Overlapping notes for the consolidator.
	seedNotes := []struct {
		content  string
		entities []string
		tags     []string
	}{
		{"Prefers Go for new backend services.", []string{"Go"}, []string{"preferences", "backend"}},
		{"Has years of Python experience from data work.", []string{"Python"}, []string{"background"}},
		{"Chose Neo4j because the data is relationship-heavy.", []string{"Neo4j", "Go"}, []string{"backend", "decisions"}},
		{"Picked Neo4j since the data is relationship heavy.", []string{"Neo4j"}, []string{"decisions"}},
	}
	for i, n := range seedNotes {
		note, err := noteSvc.CreateNote(ctx, "", n.content, n.entities, n.tags)
		if err != nil {
			log.Fatal("Failed to seed note", zap.Error(err))
		}
		// One pre-categorized note, so consolidation has existing state to
		// respect.
		if i == 0 {
			if err := noteSvc.AssignNoteToCategory(ctx, note.ID, "preferences"); err != nil {
				log.Fatal("Failed to assign category", zap.Error(err))
			}
		}
	}

	stats, err := store.AnalyzeGraph(ctx)
	if err != nil {
		log.Fatal("Failed to analyze seeded graph", zap.Error(err))
	}
	log.Info("Seeding complete",
		zap.Any("nodes", stats.NodeCounts),
		zap.Any("relationships", stats.RelationshipCounts),
	)
}
