package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu     sync.Mutex
	stored map[string]idempotency.Response
	claims map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{stored: map[string]idempotency.Response{}, claims: map[string]bool{}}
}

func (f *fakeBackend) Get(_ context.Context, key string) (*idempotency.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.stored[key]; ok {
		return &r, nil
	}
	return nil, nil
}

func (f *fakeBackend) Set(_ context.Context, key string, resp idempotency.Response, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[key] = resp
	delete(f.claims, key)
	return nil
}

func (f *fakeBackend) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claims[key] {
		return false, nil
	}
	f.claims[key] = true
	return true, nil
}

func (f *fakeBackend) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, key)
	return nil
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, idempotency.ValidateKey("abcd-1234"))
	assert.NoError(t, idempotency.ValidateKey("0b6c7e0e-8f0a-4a2e-9d55-3f1f2c4b9a10"))
	assert.True(t, errors.Is(idempotency.ValidateKey("short"), idempotency.ErrInvalidKey))
	assert.True(t, errors.Is(idempotency.ValidateKey("has space 123"), idempotency.ErrInvalidKey))
}

func TestIdempotency_ClaimCompleteReplay(t *testing.T) {
	ctx := context.Background()
	idem := idempotency.NewIdempotency(newFakeBackend(), time.Hour)

	resp, err := idem.Begin(ctx, "bid:a:u1", "key-00001", "10300.00")
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = idem.Begin(ctx, "bid:a:u1", "key-00001", "10300.00")
	assert.True(t, errors.Is(err, idempotency.ErrInFlight))

	require.NoError(t, idem.Complete(ctx, "bid:a:u1", "key-00001", idempotency.Response{Status: 201, Result: []byte(`{}`), Fingerprint: "10300.00"}))

	resp, err = idem.Begin(ctx, "bid:a:u1", "key-00001", "10300.00")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)

	other, err := idem.Begin(ctx, "bid:a:u2", "key-00001", "10300.00")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestIdempotency_AbortReleasesClaim(t *testing.T) {
	ctx := context.Background()
	idem := idempotency.NewIdempotency(newFakeBackend(), time.Hour)

	_, err := idem.Begin(ctx, "s", "key-00002", "")
	require.NoError(t, err)
	require.NoError(t, idem.Abort(ctx, "s", "key-00002"))

	resp, err := idem.Begin(ctx, "s", "key-00002", "")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestIdempotency_DifferentFingerprintIsRejected(t *testing.T) {
	ctx := context.Background()
	idem := idempotency.NewIdempotency(newFakeBackend(), time.Hour)

	_, err := idem.Begin(ctx, "s", "key-00003", "10300.00")
	require.NoError(t, err)
	require.NoError(t, idem.Complete(ctx, "s", "key-00003", idempotency.Response{Status: 201, Result: []byte(`{}`), Fingerprint: "10300.00"}))

	resp, err := idem.Begin(ctx, "s", "key-00003", "10600.00")
	assert.True(t, errors.Is(err, idempotency.ErrKeyReused), "got %v", err)
	assert.Nil(t, resp)
}
