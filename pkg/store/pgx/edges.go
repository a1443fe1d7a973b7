package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mindloom/backend/internal/util"
	"github.com/mindloom/backend/pkg/common"
	"github.com/mindloom/backend/pkg/logger"
	"github.com/mindloom/backend/pkg/store"
)

// CreateEdges resolves both endpoints of each candidate and inserts the
// edges whose endpoints are known. A candidate referencing an endpoint that
// exists neither in the resolved batch nor in the user's stored graph is
// dropped with a log line; the remaining candidates still go through.
func (u *unitOfWork) CreateEdges(ctx context.Context, candidates []common.EdgeCandidate, resolved []store.Node, userID int64) ([]store.Edge, error) {
	edges := make([]store.Edge, 0, len(candidates))
	for _, candidate := range candidates {
		from, ok, err := u.resolveEndpoint(ctx, candidate.Source, resolved, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Warn("skipping edge with unresolvable source", "source", candidate.Source.String(), "label", candidate.Label, "user_id", userID)
			continue
		}
		to, ok, err := u.resolveEndpoint(ctx, candidate.Target, resolved, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Warn("skipping edge with unresolvable target", "target", candidate.Target.String(), "label", candidate.Label, "user_id", userID)
			continue
		}

		edge := store.Edge{
			UserID:      userID,
			FromNodeID:  from.ID,
			ToNodeID:    to.ID,
			Type:        util.SanitizePostgresText(candidate.Label),
			Description: fmt.Sprintf("%s %s %s", from.Label, candidate.Label, to.Label),
		}
		err = u.tx.QueryRow(ctx,
			`INSERT INTO edges (user_id, from_node_id, to_node_id, type, description)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			edge.UserID, edge.FromNodeID, edge.ToNodeID, edge.Type, edge.Description,
		).Scan(&edge.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create edge %q for user %d: %w", edge.Type, userID, err)
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// resolveEndpoint finds the node a NodeRef points at. Label references are
// matched against the resolved batch first and the user's stored nodes
// second. Numeric references are tried as a node id within the resolved
// batch, then as a positional index into it, then as a stored node id.
func (u *unitOfWork) resolveEndpoint(ctx context.Context, ref common.NodeRef, resolved []store.Node, userID int64) (store.Node, bool, error) {
	if ref.IsNumber {
		for _, node := range resolved {
			if node.ID == ref.Position {
				return node, true, nil
			}
		}
		if ref.Position >= 0 && int(ref.Position) < len(resolved) {
			return resolved[ref.Position], true, nil
		}
		node, err := u.nodeByID(ctx, ref.Position, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Node{}, false, nil
			}
			return store.Node{}, false, err
		}
		return node, true, nil
	}

	label := store.SanitizeLabel(util.SanitizePostgresText(ref.Label))
	if label == "" {
		return store.Node{}, false, nil
	}
	for _, node := range resolved {
		if node.Label == label {
			return node, true, nil
		}
	}
	if node, ok := u.resolved[nodeCacheKey(userID, label)]; ok {
		return node, true, nil
	}

	var node store.Node
	err := u.tx.QueryRow(ctx,
		`SELECT id, label, user_id, COALESCE(type, '') FROM nodes WHERE user_id = $1 AND label = $2`,
		userID, label,
	).Scan(&node.ID, &node.Label, &node.UserID, &node.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Node{}, false, nil
	}
	if err != nil {
		return store.Node{}, false, fmt.Errorf("failed to look up node %q for user %d: %w", label, userID, err)
	}
	return node, true, nil
}

func (u *unitOfWork) nodeByID(ctx context.Context, nodeID int64, userID int64) (store.Node, error) {
	var node store.Node
	err := u.tx.QueryRow(ctx,
		`SELECT id, label, user_id, COALESCE(type, '') FROM nodes WHERE id = $1 AND user_id = $2`,
		nodeID, userID,
	).Scan(&node.ID, &node.Label, &node.UserID, &node.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Node{}, store.ErrNotFound
	}
	if err != nil {
		return store.Node{}, fmt.Errorf("failed to look up node %d for user %d: %w", nodeID, userID, err)
	}
	return node, nil
}
