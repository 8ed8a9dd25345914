package closing

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	auctions  []domain.Auction
	announced map[uuid.UUID]bool
	failures  map[uuid.UUID]int
}

func (f *fakeRepo) EndedUnannounced(_ context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	var out []domain.Auction
	for _, a := range f.auctions {
		if !a.EndsAt.After(now) && !f.announced[a.ID] && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) AnnounceClose(_ context.Context, id uuid.UUID, _ time.Time) (bool, error) {
	if f.failures[id] > 0 {
		f.failures[id]--
		return false, errors.New("restart transaction")
	}
	if f.announced[id] {
		return false, nil
	}
	f.announced[id] = true
	return true, nil
}

func TestSweep(t *testing.T) {
	now := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)
	ended := domain.Auction{ID: uuid.New(), EndsAt: now}
	flaky := domain.Auction{ID: uuid.New(), EndsAt: now.Add(-time.Hour)}
	live := domain.Auction{ID: uuid.New(), EndsAt: now.Add(time.Second)}

	repo := &fakeRepo{
		auctions:  []domain.Auction{ended, flaky, live},
		announced: map[uuid.UUID]bool{},
		failures:  map[uuid.UUID]int{flaky.ID: 1},
	}
	s := NewSweeper(repo, observability.NewLoggerWithLevel("error"))
	s.now = func() time.Time { return now }
	s.backoff = time.Millisecond

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, repo.announced[ended.ID])
	assert.True(t, repo.announced[flaky.ID])
	assert.False(t, repo.announced[live.ID])

	n, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
