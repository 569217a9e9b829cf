// Package custody keeps the handle → keypair registry for custodied users.
//
// The full record set is the unit of durability: it is loaded once into
// memory and every mutation flushes the whole set to a Store before the
// mutation becomes visible.
package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/cryptox"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

// Record is one custody entry. External wallets carry no key material.
type Record struct {
	Handle       string           `json:"handle"`
	PublicID     solana.PublicKey `json:"public_id"`
	EncryptedKey []byte           `json:"encrypted_key,omitempty"`
	Salt         []byte           `json:"salt,omitempty"`
	Nonce        []byte           `json:"nonce,omitempty"`
	Registered   bool             `json:"registered"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// External reports whether the wallet is owned outside the service.
func (r Record) External() bool {
	return len(r.EncryptedKey) == 0
}

func (r Record) sealed() cryptox.Sealed {
	return cryptox.Sealed{Ciphertext: r.EncryptedKey, Salt: r.Salt, Nonce: r.Nonce}
}

// Store persists the complete record set.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

const snapshotVersion = 1

type snapshot struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

func encodeSnapshot(records []Record) ([]byte, error) {
	return json.MarshalIndent(snapshot{Version: snapshotVersion, Records: records}, "", "  ")
}

func decodeSnapshot(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode custody snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported custody snapshot version %d", s.Version)
	}
	return s.Records, nil
}

func sortedRecords(m map[string]Record) []Record {
	out := make([]Record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
