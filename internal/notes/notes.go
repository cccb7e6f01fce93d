// Package notes is the write surface the extraction layer calls: creation
// of entities, notes, tags and categories. The engine validates shape only;
// names and content originate outside.
package notes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"graphmem/internal/graph"
	"graphmem/pkg/errors"
	"graphmem/pkg/logger"
)

// Service creates entities, notes, tags and categories
type Service struct {
	store  *graph.Store
	logger *zap.Logger
}

// NewService creates a new notes service
func NewService(store *graph.Store) *Service {
	return &Service{
		store:  store,
		logger: logger.Get(),
	}
}

// CreateEntity creates or updates an entity node. The id is caller-assigned;
// an empty id mints one.
func (s *Service) CreateEntity(ctx context.Context, id, name, entityType string) (*graph.Entity, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.NewValidation("name", "must not be empty")
	}
	if id == "" {
		id = uuid.New().String()
	}

	attrs := map[string]interface{}{"name": name}
	if entityType != "" {
		attrs["type"] = entityType
	}
	if err := s.store.UpsertNode(ctx, graph.KindEntity, id, attrs); err != nil {
		return nil, fmt.Errorf("failed to create entity: %w", err)
	}

	return &graph.Entity{ID: id, Name: name, Type: entityType}, nil
}

// CreateNote creates a note and links it to the named entities (MENTIONS)
// and tags (HAS_TAG). Entities and tags are merged by name so repeated
// extraction of the same name reuses the existing node.
func (s *Service) CreateNote(ctx context.Context, id, content string, entityNames, tagNames []string) (*graph.Note, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.NewValidation("content", "must not be empty")
	}
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.store.UpsertNode(ctx, graph.KindNote, id, map[string]interface{}{
		"content": content,
	}); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	for _, name := range entityNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := s.store.ReadWriteQuery(ctx, `
			MATCH (n:Note {id: $noteID})
			MERGE (e:Entity {name: $name})
			ON CREATE SET e.id = $entityID, e.created_at = datetime($now)
			MERGE (n)-[:MENTIONS]->(e)
		`, map[string]interface{}{
			"noteID":   id,
			"name":     name,
			"entityID": uuid.New().String(),
			"now":      now,
		}); err != nil {
			return nil, fmt.Errorf("failed to link entity %q: %w", name, err)
		}
	}

	for _, name := range tagNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := s.store.ReadWriteQuery(ctx, `
			MATCH (n:Note {id: $noteID})
			MERGE (t:Tag {name: $name})
			ON CREATE SET t.id = $tagID, t.created_at = datetime($now)
			MERGE (n)-[:HAS_TAG]->(t)
		`, map[string]interface{}{
			"noteID": id,
			"name":   name,
			"tagID":  uuid.New().String(),
			"now":    now,
		}); err != nil {
			return nil, fmt.Errorf("failed to link tag %q: %w", name, err)
		}
	}

	s.logger.Info("Note created",
		zap.String("note_id", id),
		zap.Int("entities", len(entityNames)),
		zap.Int("tags", len(tagNames)),
	)
	return &graph.Note{ID: id, Content: content}, nil
}

// CreateCategory creates or reuses a category by name
func (s *Service) CreateCategory(ctx context.Context, name string) (*graph.Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.NewValidation("name", "must not be empty")
	}

	records, err := s.store.ReadWriteQuery(ctx, `
		MERGE (c:Category {name: $name})
		ON CREATE SET c.id = $categoryID, c.created_at = datetime($now)
		RETURN c.id as id, c.name as name
	`, map[string]interface{}{
		"name":       name,
		"categoryID": uuid.New().String(),
		"now":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("failed to create category %q", name)
	}

	return &graph.Category{
		ID:   graph.StringFrom(records[0], "id"),
		Name: graph.StringFrom(records[0], "name"),
	}, nil
}

// AssignNoteToCategory links a note under a category, creating the category
// if needed
func (s *Service) AssignNoteToCategory(ctx context.Context, noteID, categoryName string) error {
	if noteID == "" {
		return errors.NewValidation("note_id", "must not be empty")
	}
	category, err := s.CreateCategory(ctx, categoryName)
	if err != nil {
		return err
	}
	return s.store.UpsertRelationship(ctx, graph.RelBelongsTo, noteID, category.ID, nil)
}

// RelateEntities records a symmetric RELATED_TO between two entities. The
// edge is stored once with endpoints ordered by id, so A->B and B->A never
// coexist.
func (s *Service) RelateEntities(ctx context.Context, entityID1, entityID2 string) error {
	if entityID1 == "" || entityID2 == "" {
		return errors.NewValidation("id", "entity ids must not be empty")
	}
	if entityID1 == entityID2 {
		return errors.NewValidation("id", "cannot relate an entity to itself")
	}
	fromID, toID := entityID1, entityID2
	if toID < fromID {
		fromID, toID = toID, fromID
	}
	return s.store.UpsertRelationship(ctx, graph.RelRelatedTo, fromID, toID, nil)
}
