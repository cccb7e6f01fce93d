// Command maintain runs a single maintenance operation against the graph
// and exits, for cron or manual use:
//
//	maintain -op merge_entities
//	maintain -op prune_messages -session all -max-messages 200 -max-age-days 90
//	maintain -op remove_orphans -dry-run
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphmem/internal/graph"
	"graphmem/internal/maintenance"
	"graphmem/pkg/config"
	"graphmem/pkg/logger"
)

func main() {
	op := flag.String("op", maintenance.OpAnalyze, "operation: analyze, find_redundant, merge_entities, remove_orphans, prune_messages, consolidate_notes")
	threshold := flag.Float64("threshold", 0, "similarity threshold override for find_redundant")
	kinds := flag.String("kinds", "", "comma-separated node kinds for remove_orphans (default: all except Session)")
	dryRun := flag.Bool("dry-run", false, "report orphan counts without deleting")
	sessionID := flag.String("session", maintenance.AllSessions, "session id for prune_messages, or \"all\"")
	maxMessages := flag.Int("max-messages", 0, "retention: keep only the N most recent messages per session")
	maxAgeDays := flag.Int("max-age-days", 0, "retention: delete messages older than D days")
	minOverlap := flag.Int("min-overlap", 2, "minimum shared entities/tags for consolidate_notes")
	advisory := flag.Bool("advisory", false, "also merge fuzzy (advisory) entity candidates")
	flag.Parse()

	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()
	log := logger.Get()

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
	resolver := maintenance.NewResolver(store, maintenance.OverlapScorer, cfg.EntityMergeThreshold)
	resolver.IncludeAdvisory = *advisory
	dispatcher := maintenance.NewDispatcher(
		store,
		resolver,
		maintenance.NewOrphanDetector(store),
		maintenance.NewPruner(store),
		maintenance.NewConsolidator(store, maintenance.OverlapScorer, cfg.NoteDupThreshold),
	)

	cmd := maintenance.Command{
		Op:         *op,
		Threshold:  *threshold,
		DryRun:     *dryRun,
		SessionID:  *sessionID,
		MinOverlap: *minOverlap,
	}
	if *kinds != "" {
		cmd.Kinds = strings.Split(*kinds, ",")
	}
	if *op == maintenance.OpPruneMessages {
		policy := maintenance.RetentionPolicy{
			MaxMessagesPerSession: *maxMessages,
			MaxAgeDays:            *maxAgeDays,
		}
		if !policy.Enabled() {
			policy = maintenance.RetentionPolicy{
				MaxMessagesPerSession: cfg.MaxMessagesPerSession,
				MaxAgeDays:            cfg.MaxAgeDays,
			}
		}
		cmd.Policy = &policy
	}

	report, err := dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		log.Fatal("Maintenance command failed", zap.String("op", *op), zap.Error(err))
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatal("Failed to encode report", zap.Error(err))
	}
	fmt.Println(string(out))
}
