package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mindloom/backend/pkg/common"
	"github.com/mindloom/backend/pkg/nlp"
	"github.com/mindloom/backend/pkg/store"
)

// fakeGraphStore implements store.GraphStore in memory with the same
// resolution semantics as the database-backed store: exact (label, user)
// match, batch-local cache, writes visible only after Commit.
type fakeGraphStore struct {
	nextID     int64
	nodes      map[string]store.Node
	references []store.ChatReference
	edgeBatch  [][]common.EdgeCandidate

	beginCount int
	failAddRef error
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{nodes: map[string]store.Node{}}
}

func (f *fakeGraphStore) Begin(_ context.Context) (store.UnitOfWork, error) {
	f.beginCount++
	return &fakeUnitOfWork{
		backing: f,
		staged:  map[string]store.Node{},
	}, nil
}

func (f *fakeGraphStore) GetUserNodes(_ context.Context, userID int64) ([]store.Node, error) {
	var out []store.Node
	for _, n := range f.nodes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeGraphStore) GetUserEdges(_ context.Context, _ int64) ([]store.Edge, error) {
	return nil, nil
}

func (f *fakeGraphStore) GetChatReferences(_ context.Context, chatID int64) ([]store.ChatReference, error) {
	var out []store.ChatReference
	for _, r := range f.references {
		if r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeGraphStore) GetNodeReferences(_ context.Context, _ int64, _ int64) ([]store.ChatReference, error) {
	return nil, nil
}

type fakeUnitOfWork struct {
	backing *fakeGraphStore
	staged  map[string]store.Node
	refs    []store.ChatReference
	edges   []common.EdgeCandidate

	committed  bool
	rolledBack bool
}

func (u *fakeUnitOfWork) ResolveOrCreateNodes(_ context.Context, candidates []common.NodeCandidate, userID int64) ([]store.Node, error) {
	types := store.NewNodeTypes(nil)
	out := make([]store.Node, 0, len(candidates))
	for _, c := range candidates {
		label := store.SanitizeLabel(c.Label)
		nodeType, err := types.Validate(c.Type)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%d:%s", userID, label)
		node, ok := u.staged[key]
		if !ok {
			node, ok = u.backing.nodes[key]
		}
		if !ok {
			u.backing.nextID++
			node = store.Node{ID: u.backing.nextID, Label: label, UserID: userID, Type: nodeType}
		}
		u.staged[key] = node
		out = append(out, node)
	}
	return out, nil
}

func (u *fakeUnitOfWork) CreateEdges(_ context.Context, candidates []common.EdgeCandidate, _ []store.Node, _ int64) ([]store.Edge, error) {
	u.edges = append(u.edges, candidates...)
	return nil, nil
}

func (u *fakeUnitOfWork) AddChatReference(_ context.Context, ref store.ChatReference) (store.ChatReference, error) {
	if u.backing.failAddRef != nil {
		return store.ChatReference{}, u.backing.failAddRef
	}
	u.refs = append(u.refs, ref)
	return ref, nil
}

func (u *fakeUnitOfWork) Commit(_ context.Context) error {
	u.committed = true
	for key, node := range u.staged {
		u.backing.nodes[key] = node
	}
	u.backing.references = append(u.backing.references, u.refs...)
	u.backing.edgeBatch = append(u.backing.edgeBatch, u.edges)
	return nil
}

func (u *fakeUnitOfWork) Rollback(_ context.Context) error {
	if !u.committed {
		u.rolledBack = true
	}
	return nil
}

func newTestProcessor(backing *fakeGraphStore, responses []string) *Processor {
	client := &fakeAIClient{responses: responses}
	extractor := newTestExtractor(client)
	return NewProcessor(NewProcessorParams{
		Store:     backing,
		Extractor: extractor,
		Tokenizer: nlp.NewTokenizer(),
	})
}

const aliceNodesResponse = `{"nodes": [
	{"label": "Alice", "spans": [[0]], "type": "person"},
	{"label": "London", "spans": [[3]], "type": "place"}
]}`

const aliceEdgesResponse = `{"edges": [
	{"label": "went to", "source": "Alice", "target": "London", "spans": [[1, 2]]}
]}`

func TestProcessor_SpanRoundTrip(t *testing.T) {
	backing := newFakeGraphStore()
	processor := newTestProcessor(backing, []string{aliceNodesResponse, aliceEdgesResponse})

	refs, err := processor.ProcessTextAndCreateReferences(context.Background(), "Alice went to London.", 10, 1)
	if err != nil {
		t.Fatalf("ProcessTextAndCreateReferences() error = %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2", len(refs))
	}

	alice, london := refs[0], refs[1]
	if alice.CharacterIdxStart != 0 || alice.CharacterIdxEnd != 5 {
		t.Errorf("Alice offsets = [%d, %d], want [0, 5]", alice.CharacterIdxStart, alice.CharacterIdxEnd)
	}
	if london.CharacterIdxStart != 14 || london.CharacterIdxEnd != 21 {
		t.Errorf("London offsets = [%d, %d], want [14, 21]", london.CharacterIdxStart, london.CharacterIdxEnd)
	}
	if alice.SentenceIdx != 0 || london.SentenceIdx != 0 {
		t.Errorf("sentence indexes = %d, %d, want 0, 0", alice.SentenceIdx, london.SentenceIdx)
	}
	if len(backing.references) != 2 {
		t.Errorf("store holds %d references, want 2", len(backing.references))
	}
	if len(backing.edgeBatch) != 1 || len(backing.edgeBatch[0]) != 1 {
		t.Errorf("store edge batches = %v, want one batch of one edge", backing.edgeBatch)
	}
}

func TestProcessor_EmptyExtractionIsNoOp(t *testing.T) {
	backing := newFakeGraphStore()
	processor := newTestProcessor(backing, []string{`{"nodes": []}`})

	refs, err := processor.ProcessTextAndCreateReferences(context.Background(), "Hmm.", 10, 1)
	if err != nil {
		t.Fatalf("ProcessTextAndCreateReferences() error = %v", err)
	}
	if refs != nil {
		t.Errorf("got %v references, want nil", refs)
	}
	if backing.beginCount != 0 {
		t.Errorf("a unit of work was opened for an empty extraction")
	}
}

func TestProcessor_FailedNodeExtractionWritesNothing(t *testing.T) {
	backing := newFakeGraphStore()
	processor := newTestProcessor(backing, []string{
		"not json", "not json", "not json",
	})

	_, err := processor.ProcessTextAndCreateReferences(context.Background(), "Alice went to London.", 10, 1)
	if !IsExtractionError(err) {
		t.Fatalf("error %v is not an ExtractionError", err)
	}
	if backing.beginCount != 0 || len(backing.nodes) != 0 {
		t.Errorf("store was touched by a failed extraction")
	}
}

func TestProcessor_DuplicateLabelsResolveToOneNode(t *testing.T) {
	backing := newFakeGraphStore()
	processor := newTestProcessor(backing, []string{
		`{"nodes": [
			{"label": "Alice", "spans": [[0]], "type": "person"},
			{"label": "Alice", "spans": [[5]], "type": "person"},
			{"label": "London", "spans": [[3]], "type": "place"}
		]}`,
		`{"edges": []}`,
	})

	refs, err := processor.ProcessTextAndCreateReferences(context.Background(), "Alice went to London. Then Alice left.", 10, 1)
	if err != nil {
		t.Fatalf("ProcessTextAndCreateReferences() error = %v", err)
	}
	if len(backing.nodes) != 2 {
		t.Fatalf("store holds %d nodes, want 2", len(backing.nodes))
	}
	if len(refs) != 3 {
		t.Fatalf("got %d references, want 3", len(refs))
	}
	if refs[0].NodeID != refs[1].NodeID {
		t.Errorf("duplicate label references point at different nodes: %d vs %d", refs[0].NodeID, refs[1].NodeID)
	}
	if refs[0].NodeID == refs[2].NodeID {
		t.Errorf("distinct labels share node %d", refs[0].NodeID)
	}
}

func TestProcessor_RepeatedMentionReusesNode(t *testing.T) {
	backing := newFakeGraphStore()

	first := newTestProcessor(backing, []string{aliceNodesResponse, aliceEdgesResponse})
	if _, err := first.ProcessTextAndCreateReferences(context.Background(), "Alice went to London.", 10, 1); err != nil {
		t.Fatalf("first pass error = %v", err)
	}
	second := newTestProcessor(backing, []string{aliceNodesResponse, aliceEdgesResponse})
	if _, err := second.ProcessTextAndCreateReferences(context.Background(), "Alice went to London.", 11, 1); err != nil {
		t.Fatalf("second pass error = %v", err)
	}

	if len(backing.nodes) != 2 {
		t.Errorf("store holds %d nodes after two mentions, want 2", len(backing.nodes))
	}
	if len(backing.references) != 4 {
		t.Errorf("store holds %d references, want 4", len(backing.references))
	}
}

func TestProcessor_UsersDoNotShareNodes(t *testing.T) {
	backing := newFakeGraphStore()

	for i, userID := range []int64{1, 2} {
		p := newTestProcessor(backing, []string{aliceNodesResponse, aliceEdgesResponse})
		if _, err := p.ProcessTextAndCreateReferences(context.Background(), "Alice went to London.", int64(10+i), userID); err != nil {
			t.Fatalf("user %d pass error = %v", userID, err)
		}
	}

	if len(backing.nodes) != 4 {
		t.Errorf("store holds %d nodes, want 4 (two per user)", len(backing.nodes))
	}
}

func TestProcessor_PersistenceErrorRollsBack(t *testing.T) {
	backing := newFakeGraphStore()
	backing.failAddRef = errors.New("disk full")
	processor := newTestProcessor(backing, []string{aliceNodesResponse})

	_, err := processor.ProcessTextAndCreateReferences(context.Background(), "Alice went to London.", 10, 1)
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if len(backing.nodes) != 0 || len(backing.references) != 0 {
		t.Errorf("store retained writes after rollback: %d nodes, %d references", len(backing.nodes), len(backing.references))
	}
}

func TestProcessor_FailedEdgeExtractionStillCommitsNodes(t *testing.T) {
	backing := newFakeGraphStore()
	processor := newTestProcessor(backing, []string{
		aliceNodesResponse,
		"not json", "not json", "not json",
	})

	refs, err := processor.ProcessTextAndCreateReferences(context.Background(), "Alice went to London.", 10, 1)
	if err != nil {
		t.Fatalf("ProcessTextAndCreateReferences() error = %v", err)
	}
	if len(refs) != 2 || len(backing.references) != 2 {
		t.Errorf("references not committed: got %d returned, %d stored", len(refs), len(backing.references))
	}
	if len(backing.edgeBatch) != 1 || len(backing.edgeBatch[0]) != 0 {
		t.Errorf("unexpected edges after failed edge extraction: %v", backing.edgeBatch)
	}
}

func TestProcessor_OutOfRangeSpanSkipped(t *testing.T) {
	backing := newFakeGraphStore()
	processor := newTestProcessor(backing, []string{
		`{"nodes": [{"label": "Alice", "spans": [[0], [99]], "type": "person"}]}`,
		`{"edges": []}`,
	})

	refs, err := processor.ProcessTextAndCreateReferences(context.Background(), "Alice went to London.", 10, 1)
	if err != nil {
		t.Fatalf("ProcessTextAndCreateReferences() error = %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("got %d references, want 1", len(refs))
	}
	if refs[0].SpanIdxStart != 0 || refs[0].SpanIdxEnd != 0 {
		t.Errorf("surviving span = [%d, %d], want [0, 0]", refs[0].SpanIdxStart, refs[0].SpanIdxEnd)
	}
}
