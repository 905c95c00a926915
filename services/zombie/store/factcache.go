// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
)

const factKeyPrefix = "facts/"

// factRecord is the stored value for one source file: the facts plus a
// content hash used to short-circuit idempotent re-ingestion.
type factRecord struct {
	Hash  string
	Facts fact.FileFacts
}

// FactCache is the durable per-file fact store. It holds the last
// accepted FileFacts for every source file, keyed by repo and path, so
// incremental refreshes and cold starts can rebuild the graph without
// re-running the external fact producers.
type FactCache struct {
	db     *db
	logger *slog.Logger
}

// OpenFactCache opens (or creates) a fact cache per the configuration.
func OpenFactCache(cfg Config) (*FactCache, error) {
	d, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FactCache{db: d, logger: logger}, nil
}

// Close flushes and closes the underlying database.
func (c *FactCache) Close() error {
	return c.db.close()
}

func factKey(repoID, filePath string) []byte {
	return []byte(factKeyPrefix + repoID + "::" + fact.NormalizePath(filePath))
}

// contentHash computes a deterministic digest of the facts. JSON is
// used because it serializes map keys in sorted order; gob does not.
func contentHash(ff *fact.FileFacts) (string, error) {
	raw, err := json.Marshal(ff)
	if err != nil {
		return "", fmt.Errorf("hash facts: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Put stores the facts for one source file, replacing any previous
// entry.
//
// Description:
//
//	Validates the facts, computes their content hash, and compares it
//	against the stored entry. Identical content is a no-op: the write
//	is skipped and changed is false. This makes re-submitting an
//	unchanged file free and keeps refresh cycles idempotent.
//
// Outputs:
//
//	changed - True when the cache was actually updated.
//	error - Validation failure or storage error.
func (c *FactCache) Put(ctx context.Context, ff *fact.FileFacts) (changed bool, err error) {
	if err := ff.Validate(); err != nil {
		return false, err
	}
	hash, err := contentHash(ff)
	if err != nil {
		return false, err
	}
	key := factKey(ff.RepoID, ff.FilePath)

	err = c.db.withTxn(ctx, func(txn *badger.Txn) error {
		if item, getErr := txn.Get(key); getErr == nil {
			var prev factRecord
			if decErr := item.Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&prev)
			}); decErr == nil && prev.Hash == hash {
				return nil
			}
			// Undecodable entries fall through and are overwritten.
		} else if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}

		var buf bytes.Buffer
		if encErr := gob.NewEncoder(&buf).Encode(factRecord{Hash: hash, Facts: *ff}); encErr != nil {
			return fmt.Errorf("encode facts: %w", encErr)
		}
		changed = true
		return txn.Set(key, buf.Bytes())
	})
	if err != nil {
		return false, fmt.Errorf("put facts %s: %w", ff.SourceKey(), err)
	}
	return changed, nil
}

// Get returns the cached facts for one source file, or ErrFactsNotFound.
func (c *FactCache) Get(ctx context.Context, repoID, filePath string) (*fact.FileFacts, error) {
	var rec factRecord
	err := c.db.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(factKey(repoID, filePath))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrFactsNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec.Facts, nil
}

// Delete removes the cached facts for one source file.
//
// Outputs:
//
//	existed - True when an entry was present and removed.
func (c *FactCache) Delete(ctx context.Context, repoID, filePath string) (existed bool, err error) {
	key := factKey(repoID, filePath)
	err = c.db.withTxn(ctx, func(txn *badger.Txn) error {
		if _, getErr := txn.Get(key); errors.Is(getErr, badger.ErrKeyNotFound) {
			return nil
		} else if getErr != nil {
			return getErr
		}
		existed = true
		return txn.Delete(key)
	})
	return existed, err
}

// Walk invokes fn for every cached file, in key order (repo, then
// path). Returning an error from fn stops the walk.
func (c *FactCache) Walk(ctx context.Context, fn func(*fact.FileFacts) error) error {
	return c.walkPrefix(ctx, []byte(factKeyPrefix), fn)
}

// WalkRepo invokes fn for every cached file of one repository.
func (c *FactCache) WalkRepo(ctx context.Context, repoID string, fn func(*fact.FileFacts) error) error {
	return c.walkPrefix(ctx, []byte(factKeyPrefix+repoID+"::"), fn)
}

func (c *FactCache) walkPrefix(ctx context.Context, prefix []byte, fn func(*fact.FileFacts) error) error {
	return c.db.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec factRecord
			err := it.Item().Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
			})
			if err != nil {
				return fmt.Errorf("decode facts %s: %w", it.Item().Key(), err)
			}
			if err := fn(&rec.Facts); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of cached files.
func (c *FactCache) Count(ctx context.Context) (int, error) {
	n := 0
	err := c.db.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(factKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
