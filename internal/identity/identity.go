package identity

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Claims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens. The subject claim is the bidder id.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

func (v *Verifier) Verify(token string) (domain.Bidder, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Bidder{}, errors.Mark(errors.Wrap(err, "parse token"), ErrUnauthenticated)
	}
	if !parsed.Valid || claims.Subject == "" {
		return domain.Bidder{}, errors.Wrap(ErrUnauthenticated, "token has no subject")
	}
	return domain.Bidder{ID: claims.Subject, DisplayName: claims.Name, Roles: claims.Roles}, nil
}

// Issue signs a token for bidder. Used by tooling and tests; production tokens come
// from the identity provider.
func (v *Verifier) Issue(bidder domain.Bidder, ttl time.Duration) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name:  bidder.DisplayName,
		Roles: bidder.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   bidder.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}
