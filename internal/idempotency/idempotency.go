package idempotency

import (
	"context"
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidKey = errors.New("invalid idempotency key")
	ErrInFlight   = errors.New("request with this idempotency key is in flight")
	ErrKeyReused  = errors.New("idempotency key reused with a different request")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{8,128}$`)

// ValidateKey accepts 8 to 128 URL-safe characters.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	return nil
}

type Response struct {
	Status int
	Result []byte
	// Fingerprint identifies the request body the response was produced for.
	Fingerprint string
}

type Backend interface {
	Get(ctx context.Context, key string) (*Response, error)
	Set(ctx context.Context, key string, resp Response, ttl time.Duration) error
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Idempotency caches final responses per (scope, key) so a retried request gets the
// first answer back without touching the engine.
type Idempotency struct {
	backend  Backend
	ttl      time.Duration
	claimTTL time.Duration
}

func NewIdempotency(backend Backend, ttl time.Duration) *Idempotency {
	return &Idempotency{backend: backend, ttl: ttl, claimTTL: 30 * time.Second}
}

func scoped(scope, key string) string { return scope + ":" + key }

// Begin returns the stored response when one exists for the same fingerprint. Otherwise
// it claims the key and the caller must finish with Complete or Abort. ErrInFlight means
// another request holds the claim; ErrKeyReused means the key answered a different body.
func (i *Idempotency) Begin(ctx context.Context, scope, key, fingerprint string) (*Response, error) {
	k := scoped(scope, key)
	resp, err := i.backend.Get(ctx, k)
	if err != nil {
		return nil, errors.Wrap(err, "idempotency lookup")
	}
	if resp != nil {
		if resp.Fingerprint != fingerprint {
			return nil, errors.Wrapf(ErrKeyReused, "key %q", key)
		}
		return resp, nil
	}
	ok, err := i.backend.Claim(ctx, k, i.claimTTL)
	if err != nil {
		return nil, errors.Wrap(err, "idempotency claim")
	}
	if !ok {
		return nil, ErrInFlight
	}
	return nil, nil
}

func (i *Idempotency) Complete(ctx context.Context, scope, key string, resp Response) error {
	return i.backend.Set(ctx, scoped(scope, key), resp, i.ttl)
}

func (i *Idempotency) Abort(ctx context.Context, scope, key string) error {
	return i.backend.Release(ctx, scoped(scope, key))
}
