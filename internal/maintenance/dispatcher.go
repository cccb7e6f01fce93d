package maintenance

import (
	"context"
	"fmt"

	"graphmem/internal/graph"
	"graphmem/pkg/errors"
)

// The six maintenance operations. The language-model layer (or any other
// caller) selects among these typed commands; it never bypasses their
// validation.
const (
	OpAnalyze          = "analyze"
	OpFindRedundant    = "find_redundant"
	OpMergeEntities    = "merge_entities"
	OpRemoveOrphans    = "remove_orphans"
	OpPruneMessages    = "prune_messages"
	OpConsolidateNotes = "consolidate_notes"
)

// Command is one typed maintenance request
type Command struct {
	Op string `json:"op"`

	// find_redundant / merge_entities
	Threshold float64    `json:"threshold,omitempty"`
	Groups    [][]string `json:"groups,omitempty"` // empty means "auto"

	// remove_orphans
	Kinds  []string `json:"kinds,omitempty"`
	IDs    []string `json:"ids,omitempty"` // empty means "everything findOrphans reports"
	DryRun bool     `json:"dry_run,omitempty"`

	// prune_messages
	SessionID string           `json:"session_id,omitempty"` // "all" for every session
	Policy    *RetentionPolicy `json:"policy,omitempty"`

	// consolidate_notes
	MinOverlap int `json:"min_overlap,omitempty"`
}

// Report is the structured outcome of a dispatched command. Partial failure
// is reported in Result, never raised.
type Report struct {
	Op      string              `json:"op"`
	Stats   *graph.GraphStats   `json:"stats,omitempty"`
	Groups  []CandidateGroup    `json:"groups,omitempty"`
	Orphans map[string][]string `json:"orphans,omitempty"`
	Counts  map[string]int64    `json:"counts,omitempty"`
	Result  *PassResult         `json:"result,omitempty"`
}

// Dispatcher routes typed commands to the maintenance components
type Dispatcher struct {
	store        *graph.Store
	resolver     *Resolver
	orphans      *OrphanDetector
	pruner       *Pruner
	consolidator *Consolidator
}

// NewDispatcher wires the maintenance components behind the fixed command
// set
func NewDispatcher(store *graph.Store, resolver *Resolver, orphans *OrphanDetector, pruner *Pruner, consolidator *Consolidator) *Dispatcher {
	return &Dispatcher{
		store:        store,
		resolver:     resolver,
		orphans:      orphans,
		pruner:       pruner,
		consolidator: consolidator,
	}
}

// Dispatch validates and executes one command. Malformed input returns a
// validation error; per-item failures inside a pass are reported in the
// Report, not raised.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (*Report, error) {
	switch cmd.Op {
	case OpAnalyze:
		stats, err := d.store.AnalyzeGraph(ctx)
		if err != nil {
			return nil, err
		}
		return &Report{Op: cmd.Op, Stats: stats}, nil

	case OpFindRedundant:
		groups, err := d.resolver.FindRedundantEntities(ctx, cmd.Threshold)
		if err != nil {
			return nil, err
		}
		return &Report{Op: cmd.Op, Groups: groups}, nil

	case OpMergeEntities:
		if len(cmd.Groups) > 0 {
			return &Report{Op: cmd.Op, Result: d.resolver.MergeGroupIDs(ctx, cmd.Groups)}, nil
		}
		result, err := d.resolver.MergeAuto(ctx)
		if err != nil {
			return nil, err
		}
		return &Report{Op: cmd.Op, Result: result}, nil

	case OpRemoveOrphans:
		ids := cmd.IDs
		var orphans map[string][]string
		if len(ids) == 0 {
			var err error
			orphans, err = d.orphans.FindOrphans(ctx, cmd.Kinds)
			if err != nil {
				return nil, err
			}
			for _, kindIDs := range orphans {
				ids = append(ids, kindIDs...)
			}
		}
		result, counts, err := d.orphans.RemoveOrphans(ctx, ids, cmd.DryRun)
		if err != nil {
			return nil, err
		}
		return &Report{Op: cmd.Op, Orphans: orphans, Counts: counts, Result: result}, nil

	case OpPruneMessages:
		if cmd.Policy == nil {
			return nil, errors.NewValidation("policy", "required for prune_messages")
		}
		sessionID := cmd.SessionID
		if sessionID == "" {
			sessionID = AllSessions
		}
		result, err := d.pruner.PruneMessages(ctx, sessionID, *cmd.Policy)
		if err != nil {
			return nil, err
		}
		return &Report{Op: cmd.Op, Result: result}, nil

	case OpConsolidateNotes:
		minOverlap := cmd.MinOverlap
		if minOverlap == 0 {
			minOverlap = 2
		}
		result, err := d.consolidator.ConsolidateNotes(ctx, minOverlap)
		if err != nil {
			return nil, err
		}
		return &Report{Op: cmd.Op, Result: result}, nil

	default:
		return nil, errors.NewValidation("op", fmt.Sprintf("unknown operation %q", cmd.Op))
	}
}
