package identity_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := identity.NewVerifier("s3cret")
	token, err := v.Issue(domain.Bidder{ID: "u-42", DisplayName: "Mira", Roles: []string{"catalog"}}, time.Hour)
	require.NoError(t, err)

	b, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", b.ID)
	assert.Equal(t, "Mira", b.DisplayName)
	assert.True(t, b.HasRole("catalog"))
}

func TestVerifier_Rejects(t *testing.T) {
	v := identity.NewVerifier("s3cret")

	expired, err := v.Issue(domain.Bidder{ID: "u1"}, -time.Minute)
	require.NoError(t, err)

	otherKey, err := identity.NewVerifier("other").Issue(domain.Bidder{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong key", otherKey},
		{"no subject", noSubject},
		{"no expiry", noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.True(t, errors.Is(err, identity.ErrUnauthenticated), "got %v", err)
		})
	}
}
