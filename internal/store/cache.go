package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// maxCachedDatasets is how many report runs are retained before the
// oldest are pruned.
const maxCachedDatasets = 7

// datasetKeyFormat orders keys chronologically under bbolt's byte-wise
// key sort.
const datasetKeyFormat = "20060102T150405.000000000"

// SaveDataset stores one report run (already serialized) keyed by its
// timestamp, pruning the cache to the most recent runs.
func (s *BoltStore) SaveDataset(at time.Time, data []byte) error {
	key := []byte(at.UTC().Format(datasetKeyFormat))

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(datasetsBucket)
		if err := b.Put(key, data); err != nil {
			return err
		}

		// Prune oldest entries beyond the retention count. Bucket
		// stats lag within a write transaction, so count by cursor.
		n := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}

		for k, _ := c.First(); k != nil && n > maxCachedDatasets; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			n--
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("caching dataset: %w", err)
	}

	return nil
}

// LatestDataset returns the most recently cached report run, or
// ErrNotFound when the cache is empty.
func (s *BoltStore) LatestDataset() ([]byte, error) {
	var data []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(datasetsBucket).Cursor().Last()
		if v != nil {
			data = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading dataset cache: %w", err)
	}

	if data == nil {
		return nil, ErrNotFound
	}

	return data, nil
}

// DatasetCount reports how many report runs are cached.
func (s *BoltStore) DatasetCount() (int, error) {
	var n int

	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(datasetsBucket).Stats().KeyN

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting datasets: %w", err)
	}

	return n, nil
}

// ResetCache drops all cached report runs.
func (s *BoltStore) ResetCache() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(datasetsBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucket(datasetsBucket)

		return err
	})
	if err != nil {
		return fmt.Errorf("resetting dataset cache: %w", err)
	}

	return nil
}
