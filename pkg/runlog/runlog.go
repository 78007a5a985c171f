// Package runlog keeps a history of autonomous runs in a bbolt file so
// operators can review past courses after a restart.
package runlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// Run summarises one navigator run.
type Run struct {
	ID        uint64    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	StartX    float64   `json:"start_x"`
	StartY    float64   `json:"start_y"`
	Captures  int       `json:"captures"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
}

// Store is a run journal backed by a single bbolt file.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: init %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Append stores r under the next sequence number and returns it.
func (s *Store) Append(r Run) (uint64, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		r.ID = id
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
	if err != nil {
		return 0, fmt.Errorf("runlog: append: %w", err)
	}
	return r.ID, nil
}

// Recent returns up to n runs, newest first. n <= 0 returns all of them.
func (s *Store) Recent(n int) ([]Run, error) {
	runs := []Run{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(runs) >= n {
				break
			}
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode run %d: %w", binary.BigEndian.Uint64(k), err)
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("runlog: recent: %w", err)
	}
	return runs, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// itob encodes ids big-endian so keys sort in insertion order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
