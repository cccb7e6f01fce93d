package graph

import "time"

// Node kinds recognized by the store. Every node carries a unique
// caller-assigned id and a creation timestamp.
const (
	KindSession  = "Session"
	KindMessage  = "Message"
	KindEntity   = "Entity"
	KindNote     = "Note"
	KindCategory = "Category"
	KindTag      = "Tag"
)

// Relationship types recognized by the store.
const (
	RelHasMessage = "HAS_MESSAGE" // Session -> Message
	RelMentions   = "MENTIONS"    // Message/Note -> Entity
	RelBelongsTo  = "BELONGS_TO"  // Note -> Category
	RelHasTag     = "HAS_TAG"     // Note -> Tag
	RelRelatedTo  = "RELATED_TO"  // Entity<->Entity, Category<->Category
)

var nodeKinds = map[string]bool{
	KindSession:  true,
	KindMessage:  true,
	KindEntity:   true,
	KindNote:     true,
	KindCategory: true,
	KindTag:      true,
}

var relationshipTypes = map[string]bool{
	RelHasMessage: true,
	RelMentions:   true,
	RelBelongsTo:  true,
	RelHasTag:     true,
	RelRelatedTo:  true,
}

// IsNodeKind reports whether kind is a recognized node label
func IsNodeKind(kind string) bool {
	return nodeKinds[kind]
}

// IsRelationshipType reports whether relType is a recognized relationship type
func IsRelationshipType(relType string) bool {
	return relationshipTypes[relType]
}

// NodeKinds returns every recognized node label
func NodeKinds() []string {
	return []string{KindSession, KindMessage, KindEntity, KindNote, KindCategory, KindTag}
}

// Session is the root of a conversation
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Seq       int64     `json:"seq"`
}

// Message is a single conversation turn, ordered within its session by
// (timestamp, seq)
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
}

// Entity is a deduplication target extracted from messages and notes
type Entity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a free-text memory item
type Note struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Category groups notes that share entities or tags
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tag is a free-form grouping label on notes
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GraphStats summarizes the current shape of the graph
type GraphStats struct {
	NodeCounts         map[string]int64 `json:"node_counts"`
	RelationshipCounts map[string]int64 `json:"relationship_counts"`
	OrphanCounts       map[string]int64 `json:"orphan_counts"`
}
