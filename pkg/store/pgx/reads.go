package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mindloom/backend/pkg/store"
)

// GetUserNodes returns every node in the user's graph, oldest first.
func (s *GraphDBStorage) GetUserNodes(ctx context.Context, userID int64) ([]store.Node, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, label, user_id, COALESCE(type, '') FROM nodes WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes for user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Node, error) {
		var node store.Node
		err := row.Scan(&node.ID, &node.Label, &node.UserID, &node.Type)
		return node, err
	})
}

// GetUserEdges returns every edge in the user's graph, oldest first.
func (s *GraphDBStorage) GetUserEdges(ctx context.Context, userID int64) ([]store.Edge, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, user_id, from_node_id, to_node_id, type, COALESCE(description, '')
		 FROM edges WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges for user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Edge, error) {
		var edge store.Edge
		err := row.Scan(&edge.ID, &edge.UserID, &edge.FromNodeID, &edge.ToNodeID, &edge.Type, &edge.Description)
		return edge, err
	})
}

// GetChatReferences returns the mention records of one chat.
func (s *GraphDBStorage) GetChatReferences(ctx context.Context, chatID int64) ([]store.ChatReference, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, chat_id, node_id, character_idx_start, character_idx_end,
		        span_idx_start, span_idx_end, COALESCE(sentence_idx, -1)
		 FROM chat_references WHERE chat_id = $1 ORDER BY character_idx_start`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query references for chat %d: %w", chatID, err)
	}
	return collectReferences(rows)
}

// GetNodeReferences returns every mention of one node across the user's
// chats, newest chat first.
func (s *GraphDBStorage) GetNodeReferences(ctx context.Context, nodeID int64, userID int64) ([]store.ChatReference, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT r.id, r.chat_id, r.node_id, r.character_idx_start, r.character_idx_end,
		        r.span_idx_start, r.span_idx_end, COALESCE(r.sentence_idx, -1)
		 FROM chat_references r
		 JOIN nodes n ON n.id = r.node_id
		 WHERE r.node_id = $1 AND n.user_id = $2
		 ORDER BY r.chat_id DESC, r.character_idx_start`,
		nodeID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query references for node %d: %w", nodeID, err)
	}
	return collectReferences(rows)
}

func collectReferences(rows pgx.Rows) ([]store.ChatReference, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.ChatReference, error) {
		var ref store.ChatReference
		err := row.Scan(&ref.ID, &ref.ChatID, &ref.NodeID,
			&ref.CharacterIdxStart, &ref.CharacterIdxEnd,
			&ref.SpanIdxStart, &ref.SpanIdxEnd, &ref.SentenceIdx)
		return ref, err
	})
}
