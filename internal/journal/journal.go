// Package journal records inbound tip commands by message id so replays
// return the stored outcome instead of moving funds twice.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketAttempts = []byte("attempts")

var ErrNotFound = errors.New("attempt not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Attempt is one inbound command and what became of it.
type Attempt struct {
	MessageID string    `json:"messageId"`
	AttemptID string    `json:"attemptId"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Amount    uint64    `json:"amount"`
	Asset     string    `json:"asset"`
	Route     string    `json:"route,omitempty"`
	Status    Status    `json:"status"`
	Signature string    `json:"signature,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot holds the balances an attempt would move, read just before it
// was submitted. Reconciliation compares them against the ledger when the
// signature never made it into the journal.
type Snapshot struct {
	SenderAvailable uint64 `json:"senderAvailable"`
	RecipientHeld   uint64 `json:"recipientHeld"`
}

// Store is a bbolt-backed attempt journal.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open creates or opens the journal file at path.
func Open(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAttempts)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin stores a as pending under its message id. When the id is already
// journaled the stored attempt is returned with created == false.
func (s *Store) Begin(a Attempt) (stored Attempt, created bool, err error) {
	if a.MessageID == "" {
		return Attempt{}, false, errors.New("message id is required")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)
		if raw := b.Get([]byte(a.MessageID)); raw != nil {
			return json.Unmarshal(raw, &stored)
		}
		now := s.now()
		a.AttemptID = uuid.NewString()
		a.Status = StatusPending
		a.CreatedAt = now
		a.UpdatedAt = now
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		stored, created = a, true
		return b.Put([]byte(a.MessageID), raw)
	})
	if err != nil {
		return Attempt{}, false, err
	}
	return stored, created, nil
}

// Update applies fn to the attempt of messageID.
func (s *Store) Update(messageID string, fn func(*Attempt) error) (Attempt, error) {
	var out Attempt
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)
		raw := b.Get([]byte(messageID))
		if raw == nil {
			return ErrNotFound
		}
		var a Attempt
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			return err
		}
		a.UpdatedAt = s.now()
		encoded, err := json.Marshal(a)
		if err != nil {
			return err
		}
		out = a
		return b.Put([]byte(messageID), encoded)
	})
	return out, err
}

// Get returns the attempt of messageID, if any.
func (s *Store) Get(messageID string) (Attempt, bool, error) {
	var (
		a  Attempt
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAttempts).Get([]byte(messageID))
		if raw == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(raw, &a)
	})
	return a, ok, err
}

// Pending lists attempts whose outcome is not settled, oldest first.
func (s *Store) Pending() ([]Attempt, error) {
	var out []Attempt
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAttempts).ForEach(func(_, v []byte) error {
			var a Attempt
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.Status == StatusPending {
				out = append(out, a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
