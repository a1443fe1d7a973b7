package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/mindloom/backend/internal/util"
	"github.com/mindloom/backend/pkg/ai"
	"github.com/mindloom/backend/pkg/common"
	"github.com/mindloom/backend/pkg/logger"
	"github.com/mindloom/backend/pkg/nlp"
)

const extractorSystemPrompt = "You are an AI expert specializing in knowledge graph creation with the " +
	"goal of capturing relationships based on a given input or request.\n" +
	"* Based on the user input in various forms such as chat messages, paragraph, " +
	"email, text files, and more.\n" +
	"* Your task is to create a knowledge graph based on the input.\n" +
	"* You will be asked to provide nodes and edges for the knowledge graph.\n" +
	"* Nodes relate to entities such as people, places, and events.\n" +
	"* Nodes must have a label parameter, where the label is a direct word or phrase from the input.\n" +
	"* Nodes must have a spans parameter that is a list of spans associated with the node label, each span being a " +
	"list of the indexes of the tokens that make up the label. The token indexes are indicated " +
	"in the input.\n" +
	"* Edges relate to the information that connects nodes. They are typically a set of tokens.\n" +
	"* Edges must also have a label parameter, where the label is a direct word or phrase from the input, and a spans " +
	"parameter that is a list of spans associated with the edge label, where each span is a list of " +
	"token indexes for the label.\n" +
	"* Respond only with JSON.\n" +
	"* Make sure the target and source of edges match an existing node.\n" +
	"* Do not include the markdown triple quotes above and below the JSON, jump straight into it " +
	"with a curly bracket.\n"

const nodeFormatPrompt = "Here is an example of the JSON format for the nodes in the knowledge graph.\n" +
	"{\n" +
	"  \"nodes\": [\n" +
	"    {\n" +
	"      \"label\": \"Apple\",\n" +
	"      \"spans\": [[0]],\n" +
	"      \"type\": one of %s\n" +
	"    },\n" +
	"    {\n" +
	"      \"label\": \"Steve Jobs\",\n" +
	"      \"spans\": [[4, 5]],\n" +
	"      \"type\": one of %s\n" +
	"    }\n" +
	"  ]\n" +
	"}"

const nodeRequestPrompt = "Please provide the nodes for the knowledge graph based on the following input text.\n" +
	"\nInput Text: \n%s\n\nToken Indexes: %s"

const edgeFormatPrompt = "Here is an example of the JSON format for the edges in the knowledge graph.\n" +
	"{\n" +
	"  \"edges\": [\n" +
	"    {\n" +
	"      \"label\": \"was run by\",\n" +
	"      \"source\": 1,\n" +
	"      \"target\": 2,\n" +
	"      \"spans\": [[1, 3]]\n" +
	"    }\n" +
	"  ]\n" +
	"}"

const edgeRequestPrompt = "Please provide the edges for the knowledge graph based on the following input text.\n" +
	"\nInput Text: \n%s\n\nToken Indexes: %s"

const existingNodesPrompt = "Here are the extracted nodes for the knowledge graph. Please provide the edges based on these nodes.\n%s"

// ExistingNode is the view of an already resolved node handed to the edge
// extraction prompt so the model can reference nodes by label or id.
type ExistingNode struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// nodeResponse and edgeResponse are the output schemas handed to the
// structured-output path. Edge endpoints are strings there; providers with
// strict schema enforcement cannot emit a string-or-number union.
type nodeResponse struct {
	Nodes []common.NodeCandidate `json:"nodes"`
}

type edgeResponse struct {
	Edges []edgeItem `json:"edges"`
}

type edgeItem struct {
	Label  string  `json:"label"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Spans  [][]int `json:"spans"`
}

// Extractor asks the AI client for node and edge candidates. It owns the
// prompt construction and the tolerant response parsing; it knows nothing
// about persistence.
type Extractor struct {
	client    ai.GraphAIClient
	model     string
	nodeTypes []string
	backoff   util.BackoffOptions
}

// NewExtractorParams defines the configuration for creating an Extractor.
// NodeTypes is rendered into the node prompt so the model only proposes
// types the store will accept.
type NewExtractorParams struct {
	Client    ai.GraphAIClient
	Model     string
	NodeTypes []string
}

// NewExtractor creates an Extractor with the default retry policy.
func NewExtractor(params NewExtractorParams) *Extractor {
	return &Extractor{
		client:    params.Client,
		model:     params.Model,
		nodeTypes: params.NodeTypes,
		backoff:   util.DefaultBackoff(),
	}
}

// ExtractNodes asks the model for node candidates over the tokenized text.
// Schema-enforced structured output is tried first; when the provider
// rejects it the plain chat completion is retried with tolerant parsing.
// An unreachable model (after retries) or an unparseable response yields an
// ExtractionError; a well-formed response with no nodes yields an empty
// slice and no error.
func (e *Extractor) ExtractNodes(ctx context.Context, doc *nlp.Doc) ([]common.NodeCandidate, error) {
	typeList := e.typeList()
	prompt := fmt.Sprintf(nodeFormatPrompt, typeList, typeList) + "\n\n" +
		fmt.Sprintf(nodeRequestPrompt, doc.Text, tokenIndexList(doc))

	var res nodeResponse
	err := e.client.GenerateCompletionWithFormat(ctx,
		"extract_graph_nodes",
		"Extract knowledge graph nodes with token spans from the input text.",
		prompt, &res, e.generateOpts()...,
	)
	if err == nil {
		return res.Nodes, nil
	}
	logger.Warn("structured node extraction unavailable, using chat completion", "error", err)

	response, err := e.generate(ctx, []ai.ChatMessage{{Role: "user", Message: prompt}})
	if err != nil {
		return nil, &ExtractionError{Stage: "node", Err: err}
	}

	nodes, err := decodeCandidates[common.NodeCandidate](response, "nodes")
	if err != nil {
		logger.Error("failed to parse node extraction response", "error", err, "response", response)
		return nil, &ExtractionError{Stage: "node", Err: err}
	}
	return nodes, nil
}

// ExtractEdges asks the model for edge candidates between the given nodes.
func (e *Extractor) ExtractEdges(ctx context.Context, doc *nlp.Doc, nodes []ExistingNode) ([]common.EdgeCandidate, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	nodeList := make([]string, 0, len(nodes))
	for _, node := range nodes {
		nodeList = append(nodeList, fmt.Sprintf("{\"id\": %d, \"label\": %q}", node.ID, node.Label))
	}

	messages := []ai.ChatMessage{
		{Role: "user", Message: edgeFormatPrompt},
		{Role: "user", Message: fmt.Sprintf(edgeRequestPrompt, doc.Text, tokenIndexList(doc))},
		{Role: "user", Message: fmt.Sprintf(existingNodesPrompt, "["+strings.Join(nodeList, ", ")+"]")},
	}

	var res edgeResponse
	err := e.client.GenerateCompletionWithFormat(ctx,
		"extract_graph_edges",
		"Extract knowledge graph edges between the provided nodes.",
		joinMessages(messages), &res, e.generateOpts()...,
	)
	if err == nil {
		edges := make([]common.EdgeCandidate, 0, len(res.Edges))
		for _, item := range res.Edges {
			edges = append(edges, common.EdgeCandidate{
				Label:  item.Label,
				Source: common.ParseNodeRef(item.Source),
				Target: common.ParseNodeRef(item.Target),
				Spans:  item.Spans,
			})
		}
		return edges, nil
	}
	logger.Warn("structured edge extraction unavailable, using chat completion", "error", err)

	response, err := e.generate(ctx, messages)
	if err != nil {
		return nil, &ExtractionError{Stage: "edge", Err: err}
	}

	edges, err := decodeCandidates[common.EdgeCandidate](response, "edges")
	if err != nil {
		logger.Error("failed to parse edge extraction response", "error", err, "response", response)
		return nil, &ExtractionError{Stage: "edge", Err: err}
	}
	return edges, nil
}

func (e *Extractor) generate(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	opts := e.generateOpts()
	return util.RetryBackoff(ctx, e.backoff, func(ctx context.Context) (string, error) {
		return e.client.GenerateChat(ctx, messages, opts...)
	})
}

func (e *Extractor) generateOpts() []ai.GenerateOption {
	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(extractorSystemPrompt),
		ai.WithTemperature(0.1),
	}
	if e.model != "" {
		opts = append(opts, ai.WithModel(e.model))
	}
	return opts
}

func joinMessages(messages []ai.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Message)
	}
	return strings.Join(parts, "\n\n")
}

func (e *Extractor) typeList() string {
	quoted := make([]string, 0, len(e.nodeTypes))
	for _, t := range e.nodeTypes {
		quoted = append(quoted, fmt.Sprintf("%q", t))
	}
	return strings.Join(quoted, ", ")
}

// tokenIndexList renders the (token, index) pairs the prompts use to anchor
// spans, e.g. `("Alice", 0), ("went", 1)`.
func tokenIndexList(doc *nlp.Doc) string {
	var b strings.Builder
	for i, token := range doc.Tokens {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(%q, %d)", token.Text, token.Index)
	}
	return b.String()
}

// decodeCandidates parses an extraction response that is either a bare JSON
// list or an object wrapping the list under key. Stray code fences are
// stripped and mildly malformed JSON is repaired before giving up.
func decodeCandidates[T any](response string, key string) ([]T, error) {
	cleaned := strings.TrimSpace(ai.StripCodeFences(response))
	if cleaned == "" {
		return nil, nil
	}

	if strings.HasPrefix(cleaned, "[") {
		var list []T
		if err := ai.UnmarshalFlexible(cleaned, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped map[string][]T
	if err := ai.UnmarshalFlexible(cleaned, &wrapped); err != nil {
		return nil, err
	}
	return wrapped[key], nil
}
