// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
)

const skeletonPrefix = "skeleton/"

// SkeletonStore keeps the latest skeleton image per project, keyed by the
// project id and the image's surface checksum.
//
// # Thread Safety
//
// Safe for concurrent use.
type SkeletonStore struct {
	db *DB
}

// NewSkeletonStore returns a store backed by db.
func NewSkeletonStore(db *DB) *SkeletonStore {
	return &SkeletonStore{db: db}
}

func projectPrefix(project uuid.UUID) []byte {
	return []byte(skeletonPrefix + project.String() + "/")
}

func skeletonKey(project uuid.UUID, checksum string) []byte {
	return append(projectPrefix(project), checksum...)
}

// Get returns the stored skeleton for (project, checksum).
//
// # Outputs
//
//   - *metadata.Image: The decoded image, nil when absent.
//   - bool: True if found.
//   - error: Read or decode failure.
func (s *SkeletonStore) Get(ctx context.Context, project uuid.UUID, checksum string) (*metadata.Image, bool, error) {
	var img *metadata.Image
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(skeletonKey(project, checksum))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := metadata.DecodeImage(val)
			if err != nil {
				return err
			}
			img = decoded
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading skeleton for %s: %w", project, err)
	}
	return img, true, nil
}

// Put stores img as the project's current skeleton and drops older ones.
func (s *SkeletonStore) Put(ctx context.Context, project uuid.UUID, img *metadata.Image) error {
	if !img.Skeleton {
		return fmt.Errorf("image for %s is not a skeleton", project)
	}
	data, err := metadata.EncodeImage(img)
	if err != nil {
		return err
	}
	key := skeletonKey(project, img.Checksum)

	return s.db.Update(ctx, func(txn *badger.Txn) error {
		stale, err := keysWithPrefix(txn, projectPrefix(project))
		if err != nil {
			return err
		}
		for _, k := range stale {
			if string(k) == string(key) {
				continue
			}
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Set(key, data)
	})
}

// Count returns the number of stored skeletons.
func (s *SkeletonStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		keys, err := keysWithPrefix(txn, []byte(skeletonPrefix))
		n = len(keys)
		return err
	})
	return n, err
}

func keysWithPrefix(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}
