package pgx

import (
	"context"
	"fmt"

	"github.com/mindloom/backend/pkg/store"
)

// AddChatReference inserts one mention record linking a chat to a node. A
// sentence index of -1 is stored as NULL.
func (u *unitOfWork) AddChatReference(ctx context.Context, ref store.ChatReference) (store.ChatReference, error) {
	if ref.CharacterIdxStart < 0 || ref.CharacterIdxStart > ref.CharacterIdxEnd {
		return store.ChatReference{}, fmt.Errorf("invalid character offsets [%d, %d] for chat %d", ref.CharacterIdxStart, ref.CharacterIdxEnd, ref.ChatID)
	}
	if ref.SpanIdxStart < 0 || ref.SpanIdxStart > ref.SpanIdxEnd {
		return store.ChatReference{}, fmt.Errorf("invalid span offsets [%d, %d] for chat %d", ref.SpanIdxStart, ref.SpanIdxEnd, ref.ChatID)
	}

	err := u.tx.QueryRow(ctx,
		`INSERT INTO chat_references
		   (chat_id, node_id, character_idx_start, character_idx_end, span_idx_start, span_idx_end, sentence_idx)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, -1))
		 RETURNING id`,
		ref.ChatID, ref.NodeID,
		ref.CharacterIdxStart, ref.CharacterIdxEnd,
		ref.SpanIdxStart, ref.SpanIdxEnd,
		ref.SentenceIdx,
	).Scan(&ref.ID)
	if err != nil {
		return store.ChatReference{}, fmt.Errorf("failed to create chat reference for chat %d: %w", ref.ChatID, err)
	}
	return ref, nil
}
