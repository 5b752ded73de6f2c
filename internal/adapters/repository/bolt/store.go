// Package bolt keeps the ledger in an embedded bbolt file. bbolt serializes
// read-write transactions; every mutation here is a single Update.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

var (
	bucketElections     = []byte("elections")
	bucketProposals     = []byte("proposals")
	bucketTargets       = []byte("targets")
	bucketElectionVotes = []byte("election_votes")
	bucketVotes         = []byte("votes")
	// uniqueness slot -> vote id
	bucketElectionSlots = []byte("election_vote_slots")
	bucketVoteSlots     = []byte("vote_slots")
	// election id + proof hash -> vote id
	bucketProofs = []byte("election_vote_proofs")
	// one nested bucket per target; its NextSequence is the audit sequence
	bucketAudit   = []byte("audit_sequences")
	bucketPending = []byte("pending_claims")
)

var allBuckets = [][]byte{
	bucketElections, bucketProposals, bucketTargets,
	bucketElectionVotes, bucketVotes,
	bucketElectionSlots, bucketVoteSlots, bucketProofs,
	bucketAudit, bucketPending,
}

type Store struct {
	db *bbolt.DB
}

var _ ports.LedgerRepository = (*Store)(nil)

// Open opens or creates the ledger file at path and makes sure every bucket
// exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file %s: %w", path, mapErr(err))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) view(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr(s.db.View(fn))
}

func (s *Store) update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr(s.db.Update(fn))
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) || errors.Is(err, bbolt.ErrTimeout) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return err
}

// key joins parts with a NUL byte so that no id can forge another key.
func key(parts ...string) []byte {
	return []byte(strings.Join(parts, "\x00"))
}

func targetKey(t domain.TargetType, id string) []byte {
	return key(string(t), id)
}

func get[T any](b *bbolt.Bucket, k []byte) (*T, bool, error) {
	raw := b.Get(k)
	if raw == nil {
		return nil, false, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("failed to decode %s: %w", k, err)
	}
	return &v, true, nil
}

func put(b *bbolt.Bucket, k []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", k, err)
	}
	return b.Put(k, raw)
}

func each[T any](b *bbolt.Bucket, fn func(v *T) error) error {
	return b.ForEach(func(k, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("failed to decode %s: %w", k, err)
		}
		return fn(&v)
	})
}
