// Package store provides the embedded bbolt-backed key/value persistence
// used by the repository writer (C9), plus a robot-path filename index
// (CacheRobotIndex/RobotIndex) that the resolver does not call. Grounded directly on the teacher's builddb.DB
// (builddb/db.go): bucket-per-concern layout, JSON-encoded records, a
// single *bolt.DB handle behind a small typed API.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names.
const (
	BucketEasyconfigs = "easyconfigs"  // (name,full_version) -> EasyconfigRecord
	BucketBuildStats  = "build_stats"  // (name,full_version) -> []BuildStat
	BucketRobotIndex  = "robot_index"  // robot path -> JSON []string of filenames
)

// Store wraps a bbolt database for the repository writer and resolver
// caches.
type Store struct {
	db   *bolt.DB
	path string
}

// EasyconfigRecord is the canonical text plus identity of one committed
// easyconfig (spec.md §3 "Repository snapshot").
type EasyconfigRecord struct {
	Name        string    `json:"name"`
	FullVersion string    `json:"full_version"`
	Text        string    `json:"text"`
	CommittedAt time.Time `json:"committed_at"`
}

// BuildStat is one build attempt's outcome, appended to the easyconfig's
// history on every commit.
type BuildStat struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Duration  string    `json:"duration"`
}

// Open opens or creates a bbolt database at path, creating the required
// buckets if absent.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir %s: %w", dir, err)
		}
	}

	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{BucketEasyconfigs, BucketBuildStats, BucketRobotIndex} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	return &Store{db: bdb, path: path}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func recordKey(name, fullVersion string) []byte {
	return []byte(name + "@" + fullVersion)
}

// PutEasyconfig writes or overwrites the canonical record for a
// (name, full_version) pair.
func (s *Store) PutEasyconfig(rec EasyconfigRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketEasyconfigs)).Put(recordKey(rec.Name, rec.FullVersion), data)
	})
}

// GetEasyconfig reads back a previously committed record, or ok=false if
// absent.
func (s *Store) GetEasyconfig(name, fullVersion string) (rec EasyconfigRecord, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BucketEasyconfigs)).Get(recordKey(name, fullVersion))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &rec)
	})
	return rec, ok, err
}

// AppendBuildStat records one build outcome alongside the easyconfig's
// history.
func (s *Store) AppendBuildStat(name, fullVersion string, stat BuildStat) error {
	key := recordKey(name, fullVersion)
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuildStats))
		var stats []BuildStat
		if data := bucket.Get(key); data != nil {
			if err := json.Unmarshal(data, &stats); err != nil {
				return err
			}
		}
		stats = append(stats, stat)
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return bucket.Put(key, data)
	})
}

// BuildStats returns the full build history for a (name, full_version)
// pair.
func (s *Store) BuildStats(name, fullVersion string) ([]BuildStat, error) {
	var stats []BuildStat
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BucketBuildStats)).Get(recordKey(name, fullVersion))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stats)
	})
	return stats, err
}

// CacheRobotIndex stores the filename listing of a robot search path,
// keyed by the path itself, used to avoid re-walking large robot trees
// on every resolver run.
func (s *Store) CacheRobotIndex(path string, filenames []string) error {
	data, err := json.Marshal(filenames)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketRobotIndex)).Put([]byte(path), data)
	})
}

// RobotIndex reads back a cached filename listing, or ok=false if absent.
func (s *Store) RobotIndex(path string) (filenames []string, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BucketRobotIndex)).Get([]byte(path))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &filenames)
	})
	return filenames, ok, err
}
