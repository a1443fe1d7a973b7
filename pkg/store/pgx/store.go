// Package pgx implements the store contracts on PostgreSQL via pgx.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindloom/backend/pkg/store"
)

// GraphDBStorage implements store.GraphStore on a pgx connection pool.
//
// A GraphDBStorage should be created using NewGraphDBStorage.
type GraphDBStorage struct {
	conn      *pgxpool.Pool
	nodeTypes store.NodeTypes
}

// NewGraphDBStorageParams defines the configuration for creating a
// GraphDBStorage. NodeTypes is the persisted node type enumeration; the
// zero value falls back to store.DefaultNodeTypes.
type NewGraphDBStorageParams struct {
	Conn      *pgxpool.Pool
	NodeTypes []string
}

// NewGraphDBStorage creates a GraphDBStorage backed by the given pool.
func NewGraphDBStorage(params NewGraphDBStorageParams) *GraphDBStorage {
	return &GraphDBStorage{
		conn:      params.Conn,
		nodeTypes: store.NewNodeTypes(params.NodeTypes),
	}
}

// Begin opens a unit of work for one chat-processing task. The caller must
// Commit or Rollback it; deferring Rollback is safe after Commit.
func (s *GraphDBStorage) Begin(ctx context.Context) (store.UnitOfWork, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin unit of work: %w", err)
	}
	return &unitOfWork{
		tx:        tx,
		nodeTypes: s.nodeTypes,
		resolved:  make(map[string]store.Node),
	}, nil
}

// unitOfWork wraps one pgx transaction. The resolved map is the local
// label cache consulted before every database lookup, which keeps duplicate
// labels within one batch from producing two inserts.
type unitOfWork struct {
	tx        pgx.Tx
	nodeTypes store.NodeTypes
	resolved  map[string]store.Node
}

func nodeCacheKey(userID int64, label string) string {
	return fmt.Sprintf("%d\x00%s", userID, label)
}

// Commit commits the transaction.
func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit unit of work: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
