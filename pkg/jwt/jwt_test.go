package jwt_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prytaneum/townhall-notifier/pkg/jwt"
)

func newService(t *testing.T) *jwt.Service {
	t.Helper()
	svc, err := jwt.New(jwt.Config{Secret: "test-secret", Issuer: "prytaneum"})
	require.NoError(t, err)
	return svc
}

func claims(aud string, exp time.Time) jwt.Claims {
	return jwt.Claims{
		EventID: "evt-1",
		Region:  "west",
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "recipient-1",
			Audience:  jwtlib.ClaimStrings{aud},
			ExpiresAt: jwtlib.NewNumericDate(exp),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := jwt.New(jwt.Config{})
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)
}

func TestSignParse(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		token, err := svc.Sign(claims("invite", time.Now().Add(time.Hour)))
		require.NoError(t, err)

		got, err := svc.Parse(token, "invite")
		require.NoError(t, err)
		assert.Equal(t, "evt-1", got.EventID)
		assert.Equal(t, "west", got.Region)
		assert.Equal(t, "recipient-1", got.Subject)
		assert.Equal(t, "prytaneum", got.Issuer)
	})

	t.Run("wrong audience", func(t *testing.T) {
		t.Parallel()
		token, err := svc.Sign(claims("invite", time.Now().Add(time.Hour)))
		require.NoError(t, err)

		_, err = svc.Parse(token, "unsubscribe")
		assert.ErrorIs(t, err, jwt.ErrInvalidAudience)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		token, err := svc.Sign(claims("invite", time.Now().Add(-time.Minute)))
		require.NoError(t, err)

		_, err = svc.Parse(token, "invite")
		assert.ErrorIs(t, err, jwt.ErrExpiredToken)
	})

	t.Run("foreign secret", func(t *testing.T) {
		t.Parallel()
		other, err := jwt.New(jwt.Config{Secret: "other"})
		require.NoError(t, err)
		token, err := other.Sign(claims("invite", time.Now().Add(time.Hour)))
		require.NoError(t, err)

		_, err = svc.Parse(token, "invite")
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := svc.Parse("not.a.token", "invite")
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})
}
