package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/cryptox"
	"github.com/dmitrijs2005/tipbot/internal/handle"
	"github.com/dmitrijs2005/tipbot/internal/logging"
	"github.com/dmitrijs2005/tipbot/internal/solana"
)

var (
	ErrNotOpen       = errors.New("custody registry is not open")
	ErrNoKeyMaterial = errors.New("no custodied key for handle")
)

// Registry maps handles to custodied keypairs. All writes go through one
// mutex; a write is visible only after the full set was flushed.
type Registry struct {
	store  Store
	sealer *cryptox.Sealer
	logger logging.Logger

	mu      sync.RWMutex
	open    bool
	records map[string]Record

	now        func() time.Time
	newKeypair func() (*solana.Keypair, error)
}

func NewRegistry(store Store, sealer *cryptox.Sealer, logger logging.Logger) *Registry {
	return &Registry{
		store:      store,
		sealer:     sealer,
		logger:     logger.With("module", "custody"),
		now:        func() time.Time { return time.Now().UTC() },
		newKeypair: solana.NewKeypair,
	}
}

// Open loads the record set. Calling it again is a no-op.
func (r *Registry) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		return nil
	}

	records, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load: %v", common.ErrPersistence, err)
	}
	r.records = make(map[string]Record, len(records))
	for _, rec := range records {
		r.records[rec.Handle] = rec
	}
	r.open = true
	r.logger.Info(ctx, "custody registry loaded", "records", len(r.records))
	return nil
}

// Close drops the cache and wipes the sealer passphrase.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	r.open = false
	if r.sealer != nil {
		r.sealer.Wipe()
	}
	return nil
}

// Lookup returns the record for handle; ok is false when none exists. A
// handle that does not normalize has no record. The only error is ErrNotOpen.
func (r *Registry) Lookup(ctx context.Context, raw string) (Record, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.open {
		return Record{}, false, ErrNotOpen
	}
	h, err := handle.Normalize(raw)
	if err != nil {
		return Record{}, false, nil
	}
	rec, ok := r.records[h]
	return rec, ok, nil
}

// Records returns every record ordered by handle.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedRecords(r.records)
}

// Generate creates a custodied keypair for handle.
func (r *Registry) Generate(ctx context.Context, raw string) (Record, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Record{}, err
	}

	kp, err := r.newKeypair()
	if err != nil {
		return Record{}, err
	}
	secret := kp.Bytes()
	sealed, err := r.sealer.Seal(secret)
	common.WipeByteArray(secret)
	pub := kp.PublicKey()
	kp.Wipe()
	if err != nil {
		return Record{}, fmt.Errorf("seal key: %w", err)
	}

	now := r.now()
	rec := Record{
		Handle:       h,
		PublicID:     pub,
		EncryptedKey: sealed.Ciphertext,
		Salt:         sealed.Salt,
		Nonce:        sealed.Nonce,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.insert(ctx, rec); err != nil {
		return Record{}, err
	}
	r.logger.Info(ctx, "custodied key generated", "handle", h, "public_id", pub.String())
	return rec, nil
}

// RegisterExternal records a wallet the service does not hold keys for.
func (r *Registry) RegisterExternal(ctx context.Context, raw string, pub solana.PublicKey) (Record, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Record{}, err
	}
	if pub.IsZero() {
		return Record{}, fmt.Errorf("%w: empty public id", common.ErrValidation)
	}

	now := r.now()
	rec := Record{Handle: h, PublicID: pub, CreatedAt: now, UpdatedAt: now}
	if err := r.insert(ctx, rec); err != nil {
		return Record{}, err
	}
	r.logger.Info(ctx, "external wallet recorded", "handle", h, "public_id", pub.String())
	return rec, nil
}

// MarkRegistered flags handle as registered on the ledger.
func (r *Registry) MarkRegistered(ctx context.Context, raw string) (Record, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return Record{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return Record{}, ErrNotOpen
	}
	rec, ok := r.records[h]
	if !ok {
		return Record{}, fmt.Errorf("custody record %s: %w", h, common.ErrorNotFound)
	}
	if rec.Registered {
		return rec, nil
	}
	rec.Registered = true
	rec.UpdatedAt = r.now()
	if err := r.commitLocked(ctx, h, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// WithSigner opens the custodied key of handle, passes a signer to fn and
// wipes the key when fn returns.
func (r *Registry) WithSigner(ctx context.Context, raw string, fn func(solana.Signer) error) error {
	rec, ok, err := r.Lookup(ctx, raw)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("custody record %s: %w", raw, common.ErrorNotFound)
	}
	if rec.External() {
		return fmt.Errorf("%w: %s", ErrNoKeyMaterial, rec.Handle)
	}

	secret, err := r.sealer.Open(rec.sealed())
	if err != nil {
		return fmt.Errorf("open key %s: %w", rec.Handle, err)
	}
	kp, err := solana.KeypairFromBytes(secret)
	common.WipeByteArray(secret)
	if err != nil {
		return fmt.Errorf("open key %s: %w", rec.Handle, err)
	}
	defer kp.Wipe()

	if kp.PublicKey() != rec.PublicID {
		return fmt.Errorf("open key %s: public id mismatch", rec.Handle)
	}
	return fn(kp)
}

func (r *Registry) insert(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return ErrNotOpen
	}
	if _, exists := r.records[rec.Handle]; exists {
		return fmt.Errorf("%w: %s", common.ErrAlreadyRegistered, rec.Handle)
	}
	return r.commitLocked(ctx, rec.Handle, rec)
}

// commitLocked flushes the set with rec applied and publishes it only when
// the flush succeeded.
func (r *Registry) commitLocked(ctx context.Context, h string, rec Record) error {
	next := make(map[string]Record, len(r.records)+1)
	for k, v := range r.records {
		next[k] = v
	}
	next[h] = rec

	if err := r.store.Save(ctx, sortedRecords(next)); err != nil {
		r.logger.Error(ctx, "custody flush failed", "handle", h, "error", err)
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	r.records = next
	return nil
}

// Wallet returns the public id recorded for handle.
func (r *Registry) Wallet(ctx context.Context, raw string) (solana.PublicKey, bool, error) {
	rec, ok, err := r.Lookup(ctx, raw)
	if err != nil || !ok {
		return solana.PublicKey{}, ok, err
	}
	return rec.PublicID, true, nil
}
