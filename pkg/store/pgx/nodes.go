package pgx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mindloom/backend/internal/util"
	"github.com/mindloom/backend/pkg/common"
	"github.com/mindloom/backend/pkg/store"
)

// ResolveOrCreateNodes maps extraction candidates onto stored nodes for one
// user. Resolution order per candidate: local batch cache, then the user's
// existing rows, then an insert. The insert uses ON CONFLICT so a
// concurrent writer racing on the same (user, label) pair resolves to the
// existing row instead of failing the whole batch.
func (u *unitOfWork) ResolveOrCreateNodes(ctx context.Context, candidates []common.NodeCandidate, userID int64) ([]store.Node, error) {
	nodes := make([]store.Node, 0, len(candidates))
	for _, candidate := range candidates {
		label := store.SanitizeLabel(util.SanitizePostgresText(candidate.Label))
		if label == "" {
			return nil, fmt.Errorf("node candidate with empty label for user %d", userID)
		}
		nodeType, err := u.nodeTypes.Validate(candidate.Type)
		if err != nil {
			return nil, err
		}

		key := nodeCacheKey(userID, label)
		if node, ok := u.resolved[key]; ok {
			nodes = append(nodes, node)
			continue
		}

		node, err := u.resolveNode(ctx, label, nodeType, userID)
		if err != nil {
			return nil, err
		}
		u.resolved[key] = node
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (u *unitOfWork) resolveNode(ctx context.Context, label string, nodeType string, userID int64) (store.Node, error) {
	node := store.Node{Label: label, UserID: userID}

	var existingType sql.NullString
	err := u.tx.QueryRow(ctx,
		`SELECT id, type FROM nodes WHERE user_id = $1 AND label = $2`,
		userID, label,
	).Scan(&node.ID, &existingType)
	if err == nil {
		node.Type = existingType.String
		return node, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Node{}, fmt.Errorf("failed to look up node %q for user %d: %w", label, userID, err)
	}

	// The no-op DO UPDATE makes RETURNING yield the existing row when a
	// concurrent transaction created the node first. The stored type is
	// fixed at creation and never overwritten by later candidates.
	var insertedType sql.NullString
	err = u.tx.QueryRow(ctx,
		`INSERT INTO nodes (user_id, label, type)
		 VALUES ($1, $2, NULLIF($3, ''))
		 ON CONFLICT (user_id, label) DO UPDATE SET label = EXCLUDED.label
		 RETURNING id, type`,
		userID, label, nodeType,
	).Scan(&node.ID, &insertedType)
	if err != nil {
		return store.Node{}, fmt.Errorf("failed to create node %q for user %d: %w", label, userID, err)
	}
	node.Type = insertedType.String
	return node, nil
}
