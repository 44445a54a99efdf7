// Package journal is a small bbolt-backed record of scanned slips. The watcher
// uses it to skip files it has already handled; every scan is also appended
// to an audit bucket.
package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	processedBucket = []byte("processed")
	scansBucket     = []byte("scans")
)

var ErrClosed = errors.New("journal closed")

// Entry describes one scan attempt.
type Entry struct {
	ID            string    `json:"id"`
	File          string    `json:"file"`
	Hash          string    `json:"hash"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	Amount        float64   `json:"amount,omitempty"`
	Recipient     string    `json:"recipient,omitempty"`
	TransactionID uint      `json:"transactionId,omitempty"`
	At            time.Time `json:"at"`
}

type Journal struct {
	db *bbolt.DB
}

func Open(path string) (*Journal, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(processedBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(scansBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal buckets: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// HashBytes is the content key used for deduplication.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Seen reports whether hash was marked processed.
func (j *Journal) Seen(hash string) (bool, error) {
	if j == nil || j.db == nil {
		return false, ErrClosed
	}
	var seen bool
	err := j.db.View(func(tx *bbolt.Tx) error {
		seen = tx.Bucket(processedBucket).Get([]byte(hash)) != nil
		return nil
	})
	return seen, err
}

// Record appends e to the audit log. When processed is true the entry's hash
// is also marked so later Seen calls return true.
func (j *Journal) Record(e Entry, processed bool) (Entry, error) {
	if j == nil || j.db == nil {
		return e, ErrClosed
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("marshaling entry: %w", err)
	}
	key := []byte(e.At.UTC().Format(time.RFC3339Nano) + "/" + e.ID)
	err = j.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(scansBucket).Put(key, data); err != nil {
			return err
		}
		if processed && e.Hash != "" {
			return tx.Bucket(processedBucket).Put([]byte(e.Hash), []byte(e.ID))
		}
		return nil
	})
	if err != nil {
		return e, fmt.Errorf("recording entry: %w", err)
	}
	return e, nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}
	var out []Entry
	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(scansBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decoding entry %s: %w", k, err)
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}
