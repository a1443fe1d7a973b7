// Package store defines the persistence contracts for the per-user
// knowledge graph and the chat history it is built from.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/mindloom/backend/pkg/common"
)

// ErrInvalidNodeType is returned when a node candidate carries a type that
// is not part of the store's configured enumeration. This is a contract
// violation, not a transient failure, and is never retried.
var ErrInvalidNodeType = errors.New("invalid node type")

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Node is a graph entity scoped to one owning user. Matching identity is
// (sanitized label, user id); labels are never shared across users.
type Node struct {
	ID     int64  `json:"id"`
	Label  string `json:"label"`
	UserID int64  `json:"user_id"`
	Type   string `json:"type,omitempty"`
}

// Edge is a directed, typed relation between two nodes owned by the same
// user. Both endpoints exist by the time an edge row is committed.
type Edge struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	FromNodeID  int64  `json:"from_node_id"`
	ToNodeID    int64  `json:"to_node_id"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ChatReference links one chat message to one node, carrying the character
// offsets and token-span offsets of the mention. SentenceIdx is -1 when the
// sentence could not be determined. Rows are written once and never mutated.
type ChatReference struct {
	ID                int64 `json:"id"`
	ChatID            int64 `json:"chat_id"`
	NodeID            int64 `json:"node_id"`
	CharacterIdxStart int   `json:"character_idx_start"`
	CharacterIdxEnd   int   `json:"character_idx_end"`
	SpanIdxStart      int   `json:"span_idx_start"`
	SpanIdxEnd        int   `json:"span_idx_end"`
	SentenceIdx       int   `json:"sentence_idx"`
}

// Chat is one conversational turn. Text is the Fernet ciphertext; the
// embedding is set after the synchronous embed step and the row is
// immutable afterwards, except for graph-linkage side effects.
type Chat struct {
	ID               int64           `json:"id"`
	TherapySessionID int64           `json:"therapy_session_id"`
	UserID           int64           `json:"user_id"`
	Sender           string          `json:"sender"`
	Text             string          `json:"-"`
	Embedding        pgvector.Vector `json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TherapySession groups the chats of one user with one therapist persona.
type TherapySession struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	TherapistName string    `json:"therapist_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// User carries the per-user encryption key for the text confidentiality
// service.
type User struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	EncryptionKey string `json:"-"`
}

// RelevantChat is a similarity-search hit over past chats.
type RelevantChat struct {
	Chat  Chat
	Score float64
}

// DefaultNodeTypes is the persisted node type enumeration. The set is a
// parameter of the store, not a constant of the schema.
var DefaultNodeTypes = []string{"none", "event", "person", "place", "object", "organisation"}

// NodeTypes validates candidate node types against a configured set.
type NodeTypes struct {
	valid map[string]struct{}
}

// NewNodeTypes builds a validator from the given type names. An empty list
// falls back to DefaultNodeTypes.
func NewNodeTypes(types []string) NodeTypes {
	if len(types) == 0 {
		types = DefaultNodeTypes
	}
	valid := make(map[string]struct{}, len(types))
	for _, t := range types {
		valid[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return NodeTypes{valid: valid}
}

// Validate normalizes a candidate type and checks it against the set. The
// empty string is always allowed and means "untyped". Unknown types fail
// fast with ErrInvalidNodeType.
func (n NodeTypes) Validate(nodeType string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(nodeType))
	if normalized == "" {
		return "", nil
	}
	if _, ok := n.valid[normalized]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidNodeType, nodeType)
	}
	return normalized, nil
}

// SanitizeLabel prepares a candidate label for persistence. Newlines become
// a literal marker so a label can never smuggle line breaks into downstream
// prompt construction.
func SanitizeLabel(label string) string {
	label = strings.ReplaceAll(label, "\n", "newline")
	return strings.TrimSpace(label)
}

// UnitOfWork is one transactional scope for a single chat-processing task.
// All node, edge, and reference writes for the task go through the same
// unit of work and are committed or rolled back together. Rollback after a
// successful Commit is a no-op, so it is safe to defer.
type UnitOfWork interface {
	// ResolveOrCreateNodes resolves each candidate against the user's graph,
	// creating missing nodes. The result has the same length and order as
	// candidates; duplicate labels in one batch resolve to the same node.
	ResolveOrCreateNodes(ctx context.Context, candidates []common.NodeCandidate, userID int64) ([]Node, error)

	// CreateEdges resolves each candidate's endpoints against resolved (then
	// the user's stored nodes) and inserts the survivors. Candidates with an
	// unresolvable endpoint are skipped, not errors.
	CreateEdges(ctx context.Context, candidates []common.EdgeCandidate, resolved []Node, userID int64) ([]Edge, error)

	// AddChatReference inserts one mention record. Offsets must satisfy
	// 0 <= start <= end.
	AddChatReference(ctx context.Context, ref ChatReference) (ChatReference, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// GraphStore is the entry point to the knowledge-graph side of the
// database: transactional writes via units of work and read-only views for
// the API.
type GraphStore interface {
	Begin(ctx context.Context) (UnitOfWork, error)

	GetUserNodes(ctx context.Context, userID int64) ([]Node, error)
	GetUserEdges(ctx context.Context, userID int64) ([]Edge, error)
	GetChatReferences(ctx context.Context, chatID int64) ([]ChatReference, error)
	GetNodeReferences(ctx context.Context, nodeID int64, userID int64) ([]ChatReference, error)
}

// ChatStore persists users, sessions, and chat turns.
type ChatStore interface {
	GetUser(ctx context.Context, userID int64) (User, error)
	CreateUser(ctx context.Context, username string, encryptionKey string) (User, error)

	CreateSession(ctx context.Context, userID int64, therapistName string) (TherapySession, error)
	GetSession(ctx context.Context, sessionID int64) (TherapySession, error)
	ListUserSessions(ctx context.Context, userID int64) ([]TherapySession, error)

	InsertChat(ctx context.Context, chat Chat) (Chat, error)
	UpdateChatEmbedding(ctx context.Context, chatID int64, embedding pgvector.Vector) error
	GetSessionChats(ctx context.Context, sessionID int64) ([]Chat, error)

	// FindRelevantChats returns the user's past chats whose embeddings are
	// within the cosine-similarity threshold of the query vector, most
	// similar first.
	FindRelevantChats(ctx context.Context, userID int64, query pgvector.Vector, threshold float64, limit int) ([]RelevantChat, error)
}
