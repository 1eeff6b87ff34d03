package challenge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/uvensys/captchify/lib/pow"
	"github.com/uvensys/captchify/lib/store"
)

// tokenEntropy is how many random bytes go into challenge identifiers and
// server nonces.
const tokenEntropy = 16

// Registry is the keyed registry of outstanding challenges. All check-then-act
// sequences on a challenge's used flag go through the registry lock so that
// two concurrent verifications of the same identifier cannot both succeed.
type Registry struct {
	lock       sync.Mutex
	db         store.JSON[Challenge]
	key        []byte
	difficulty int
	ttl        time.Duration
	now        func() time.Time
}

// NewRegistry builds a Registry on top of any store backend. key is the
// secret used for prefix derivation.
func NewRegistry(st store.Interface, key []byte, difficulty int, ttl time.Duration) *Registry {
	return &Registry{
		db:         store.JSON[Challenge]{Underlying: st, Prefix: "challenge:"},
		key:        key,
		difficulty: difficulty,
		ttl:        ttl,
		now:        time.Now,
	}
}

// WithNow overrides the registry clock for tests.
func (reg *Registry) WithNow(now func() time.Time) *Registry {
	reg.now = now
	return reg
}

// TTL returns how long issued challenges stay solvable.
func (reg *Registry) TTL() time.Duration { return reg.ttl }

// storeTTL keeps records around past their logical expiry so that a late
// verify gets "expired" instead of "unknown". Physical removal is handled
// by the store backend and is invisible to the accept/reject semantics.
func (reg *Registry) storeTTL() time.Duration { return 2 * reg.ttl }

// Create mints a fresh challenge for origin ip and records it.
func (reg *Registry) Create(ctx context.Context, ip string) (Challenge, error) {
	c := Challenge{
		ID:          randomToken(tokenEntropy),
		ServerNonce: randomToken(tokenEntropy),
		Difficulty:  reg.difficulty,
		IssuedAt:    reg.now(),
		IP:          ip,
	}
	c.Prefix = pow.DerivePrefix(reg.key, c.ID, c.ServerNonce)

	if err := reg.db.Set(ctx, c.ID, c, reg.storeTTL()); err != nil {
		return Challenge{}, err
	}

	return c, nil
}

// Get fetches a challenge that is still open for verification. Returns
// ErrNotFound, ErrAlreadyUsed, or ErrExpired when it is not.
func (reg *Registry) Get(ctx context.Context, id string) (Challenge, error) {
	c, err := reg.db.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Challenge{}, ErrNotFound
	case err != nil:
		return Challenge{}, err
	}

	if c.Used {
		return Challenge{}, ErrAlreadyUsed
	}

	if c.Expired(reg.now(), reg.ttl) {
		return Challenge{}, ErrExpired
	}

	return c, nil
}

// Consume atomically flips the used flag of a still-valid challenge. The
// second of two racing callers gets ErrAlreadyUsed.
func (reg *Registry) Consume(ctx context.Context, id string) error {
	reg.lock.Lock()
	defer reg.lock.Unlock()

	c, err := reg.db.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return err
	}

	if c.Used {
		return ErrAlreadyUsed
	}

	if c.Expired(reg.now(), reg.ttl) {
		return ErrExpired
	}

	c.Used = true
	return reg.db.Set(ctx, id, c, reg.storeTTL())
}
