package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/entity"
)

func newTestIssuer(secret string) *Issuer {
	cfg := config.Config{Auth: config.Auth{
		JWTSecret:  secret,
		Issuer:     "tableside",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	}}
	return NewIssuer(cfg)
}

func TestIssueAndVerify(t *testing.T) {
	issuer := newTestIssuer("0123456789abcdef")

	token, expires, err := issuer.Issue(Principal{UserID: 12, Role: entity.RoleWorker})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	p, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: 12, Role: entity.RoleWorker}, p)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	token, _, err := newTestIssuer("0123456789abcdef").Issue(Principal{UserID: 1, Role: entity.RoleAdmin})
	require.NoError(t, err)

	_, err = newTestIssuer("fedcba9876543210").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := newTestIssuer("0123456789abcdef")
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := issuer.Issue(Principal{UserID: 1, Role: entity.RoleClient})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := newTestIssuer("0123456789abcdef").Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	issuer := newTestIssuer("0123456789abcdef")
	hash, err := issuer.HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.True(t, issuer.CheckPassword(hash, "s3cret-pass"))
	assert.False(t, issuer.CheckPassword(hash, "wrong"))
}
