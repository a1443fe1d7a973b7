package graph

import (
	"context"
	"fmt"

	"github.com/mindloom/backend/pkg/logger"
	"github.com/mindloom/backend/pkg/nlp"
	"github.com/mindloom/backend/pkg/store"
)

// Notifier is told about committed graph updates. Implementations must not
// block; a nil Notifier disables notifications.
type Notifier interface {
	GraphUpdated(userID int64, chatID int64, nodes int, edges int, references int)
}

// Processor runs the full graph pipeline for one chat message: tokenize,
// extract, resolve, link, commit. All writes for one message happen inside
// a single unit of work, so a failure partway through leaves the graph
// untouched.
type Processor struct {
	store     store.GraphStore
	extractor *Extractor
	tokenizer *nlp.Tokenizer
	notifier  Notifier
}

// NewProcessorParams defines the configuration for creating a Processor.
// Notifier is optional.
type NewProcessorParams struct {
	Store     store.GraphStore
	Extractor *Extractor
	Tokenizer *nlp.Tokenizer
	Notifier  Notifier
}

// NewProcessor creates a Processor.
func NewProcessor(params NewProcessorParams) *Processor {
	return &Processor{
		store:     params.Store,
		extractor: params.Extractor,
		tokenizer: params.Tokenizer,
		notifier:  params.Notifier,
	}
}

// ProcessChat runs the pipeline for one queued task.
func (p *Processor) ProcessChat(ctx context.Context, task Task) error {
	refs, err := p.ProcessTextAndCreateReferences(ctx, task.Text, task.ChatID, task.UserID)
	if err != nil {
		return err
	}
	logger.Debug("processed chat", "chat_id", task.ChatID, "user_id", task.UserID, "references", len(refs))
	return nil
}

// ProcessTextAndCreateReferences extracts entities from text, resolves them
// into the user's graph, and writes one chat reference per mention. An
// extraction that finds nothing is a successful no-op. A failed edge
// extraction degrades gracefully: the nodes and references still commit,
// only the edges of this message are lost.
func (p *Processor) ProcessTextAndCreateReferences(ctx context.Context, text string, chatID int64, userID int64) ([]store.ChatReference, error) {
	doc := p.tokenizer.Tokenize(text)

	candidates, err := p.extractor.ExtractNodes(ctx, doc)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	uow, err := p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)

	nodes, err := uow.ResolveOrCreateNodes(ctx, candidates, userID)
	if err != nil {
		return nil, err
	}

	references := make([]store.ChatReference, 0, len(candidates))
	for i, candidate := range candidates {
		node := nodes[i]
		for _, span := range candidate.Spans {
			ref, ok := referenceForSpan(doc, span, chatID, node.ID)
			if !ok {
				logger.Warn("skipping out-of-range span", "span", span, "label", candidate.Label, "chat_id", chatID)
				continue
			}
			ref, err = uow.AddChatReference(ctx, ref)
			if err != nil {
				return nil, err
			}
			references = append(references, ref)
		}
	}

	resolved := existingNodes(nodes)
	var created []store.Edge
	edgeCandidates, edgeErr := p.extractor.ExtractEdges(ctx, doc, resolved)
	if edgeErr != nil {
		logger.Error("edge extraction failed, committing nodes without edges", "error", edgeErr, "chat_id", chatID)
	} else if len(edgeCandidates) > 0 {
		created, err = uow.CreateEdges(ctx, edgeCandidates, nodes, userID)
		if err != nil {
			return nil, err
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit graph updates for chat %d: %w", chatID, err)
	}
	if p.notifier != nil {
		p.notifier.GraphUpdated(userID, chatID, len(resolved), len(created), len(references))
	}
	return references, nil
}

// referenceForSpan maps a token-index span onto character offsets. The span
// start offset is the first token's start; the end offset is just past the
// last token, punctuation included.
func referenceForSpan(doc *nlp.Doc, span []int, chatID int64, nodeID int64) (store.ChatReference, bool) {
	if len(span) == 0 {
		return store.ChatReference{}, false
	}
	first, last := span[0], span[len(span)-1]
	if first < 0 || last < first || last >= len(doc.Tokens) {
		return store.ChatReference{}, false
	}
	return store.ChatReference{
		ChatID:            chatID,
		NodeID:            nodeID,
		CharacterIdxStart: doc.Tokens[first].Start,
		CharacterIdxEnd:   doc.Tokens[last].End(),
		SpanIdxStart:      first,
		SpanIdxEnd:        last,
		SentenceIdx:       doc.SentenceIndexOf(first),
	}, true
}

// existingNodes deduplicates the resolved batch for the edge prompt, since
// duplicate candidate labels resolve to the same node.
func existingNodes(nodes []store.Node) []ExistingNode {
	seen := make(map[int64]struct{}, len(nodes))
	out := make([]ExistingNode, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := seen[node.ID]; ok {
			continue
		}
		seen[node.ID] = struct{}{}
		out = append(out, ExistingNode{ID: node.ID, Label: node.Label})
	}
	return out
}
