// Package pebbledb is the durable storage collaborator backed by a pebble
// key-value store. It is the production sink for finalization notices.
package pebbledb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/finlabs/ffg/types"
)

const finalizedPrefix = "f/"

// Store is a pebble-backed implementation of storage.Store. Writes are
// synced: a delivered finalization notice survives a crash.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

func finalizedKey(height types.Height) []byte {
	key := make([]byte, len(finalizedPrefix)+8)
	copy(key, finalizedPrefix)
	binary.BigEndian.PutUint64(key[len(finalizedPrefix):], uint64(height))
	return key
}

func (s *Store) MarkFinalized(ctx context.Context, req *types.MarkFinalizedRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := finalizedKey(req.BlockHeight)
	existing, closer, err := s.db.Get(key)
	if err == nil {
		// Idempotent redelivery: same correlation id is a no-op.
		var prev types.MarkFinalizedRequest
		decodeErr := json.Unmarshal(existing, &prev)
		closer.Close()
		if decodeErr == nil && prev.CorrelationID == req.CorrelationID {
			return nil
		}
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("read finalized %d: %w", req.BlockHeight, err)
	}

	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode finalized %d: %w", req.BlockHeight, err)
	}
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("write finalized %d: %w", req.BlockHeight, err)
	}
	return nil
}

func (s *Store) Finalized(ctx context.Context, height types.Height) (*types.MarkFinalizedRequest, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	value, closer, err := s.db.Get(finalizedKey(height))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read finalized %d: %w", height, err)
	}
	defer closer.Close()

	var req types.MarkFinalizedRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return nil, false, fmt.Errorf("decode finalized %d: %w", height, err)
	}
	return &req, true, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
