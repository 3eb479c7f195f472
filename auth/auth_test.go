package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"jimgabang/models"
	"jimgabang/store"
)

const secret = "test-secret"

var epoch = time.Unix(1_700_000_000, 0)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func sign(t *testing.T, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func hostClaims(exp *jwt.NumericDate) Claims {
	return Claims{
		Type: Access,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "host@gmail.com",
			Audience:  jwt.ClaimStrings{string(KindHost)},
			ExpiresAt: exp,
			ID:        "jti-1",
		},
	}
}

func TestPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, plain := range []string{"1234", "correct horse battery staple", "비밀번호"} {
		digest, err := HashPassword(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, digest)
		assert.True(t, CheckPassword(plain, digest))
		assert.False(t, CheckPassword(plain+"x", digest))
	}
}

func TestPassword_MalformedDigest(t *testing.T) {
	t.Parallel()

	assert.False(t, CheckPassword("1234", "not-a-bcrypt-digest"))
	assert.False(t, CheckPassword("1234", ""))
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	c := NewTokenCodec(secret, KindHost, WithClock(fixedClock(epoch)))
	for _, email := range []string{"host@gmail.com", "a@b.co", "ünï@cödé.kr"} {
		tok, err := c.Issue(email, Access)
		require.NoError(t, err)

		claims, err := c.Decode(tok, Access)
		require.NoError(t, err)
		assert.Equal(t, email, claims.Subject)
		assert.Equal(t, epoch.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
		assert.NotEmpty(t, claims.ID)
	}
}

func TestCodec_Pair(t *testing.T) {
	t.Parallel()

	c := NewTokenCodec(secret, KindClient, WithClock(fixedClock(epoch)))
	p, err := c.IssuePair("client@gmail.com")
	require.NoError(t, err)

	claims, err := c.Decode(p.Refresh, Refresh)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(DefaultRefreshTTL).Unix(), claims.ExpiresAt.Unix())

	_, err = c.Decode(p.Refresh, Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = c.Decode(p.Access, Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	c := NewTokenCodec(secret, KindHost, WithClock(fixedClock(epoch)))

	_, err := c.Decode(sign(t, hostClaims(jwt.NewNumericDate(epoch.Add(-time.Second)))), Access)
	assert.ErrorIs(t, err, ErrTokenExpired)

	claims, err := c.Decode(sign(t, hostClaims(jwt.NewNumericDate(epoch.Add(time.Hour)))), Access)
	require.NoError(t, err)
	assert.Equal(t, "host@gmail.com", claims.Subject)
}

func TestCodec_MissingExpiry(t *testing.T) {
	t.Parallel()

	c := NewTokenCodec(secret, KindHost, WithClock(fixedClock(epoch)))
	_, err := c.Decode(sign(t, hostClaims(nil)), Access)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestCodec_Invalid(t *testing.T) {
	t.Parallel()

	c := NewTokenCodec(secret, KindHost, WithClock(fixedClock(epoch)))
	good, err := c.Issue("host@gmail.com", Access)
	require.NoError(t, err)

	other := NewTokenCodec("other-secret", KindHost, WithClock(fixedClock(epoch)))
	forged, err := other.Issue("host@gmail.com", Access)
	require.NoError(t, err)

	client := NewTokenCodec(secret, KindClient, WithClock(fixedClock(epoch)))
	clientTok, err := client.Issue("host@gmail.com", Access)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, hostClaims(jwt.NewNumericDate(epoch.Add(time.Hour)))).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for name, tok := range map[string]string{
		"garbage":      "not.a.token",
		"empty":        "",
		"wrong secret": forged,
		"wrong kind":   clientTok,
		"alg none":     none,
		"tampered":     tampered,
	} {
		_, err := c.Decode(tok, Access)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestMemoryRevoker(t *testing.T) {
	t.Parallel()

	r := NewMemoryRevoker()
	now := epoch
	r.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "a", epoch.Add(time.Minute)))
	require.NoError(t, r.Revoke(ctx, "past", epoch.Add(-time.Minute)))
	assert.ErrorIs(t, r.Revoke(ctx, "a", epoch.Add(time.Minute)), ErrRevoked)

	ok, err := r.Revoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = r.Revoked(ctx, "past")
	assert.False(t, ok)

	now = epoch.Add(2 * time.Minute)
	ok, _ = r.Revoked(ctx, "a")
	assert.False(t, ok)
}

func newHostVerifier(t *testing.T) (*Verifier[models.Host], *store.Memory[models.Host]) {
	t.Helper()
	hosts := store.NewMemory[models.Host]()
	require.NoError(t, hosts.Save(context.Background(), &models.Host{
		ID:    primitive.NewObjectID(),
		Email: "host@gmail.com",
	}))
	codec := NewTokenCodec(secret, KindHost, WithClock(fixedClock(epoch)))
	return NewVerifier[models.Host](codec, NewMemoryRevoker(), hosts), hosts
}

func TestVerifier(t *testing.T) {
	t.Parallel()

	v, _ := newHostVerifier(t)
	ctx := context.Background()

	tok, err := v.Codec.Issue("host@gmail.com", Access)
	require.NoError(t, err)
	claims, host, err := v.Verify(ctx, tok, Access)
	require.NoError(t, err)
	assert.Equal(t, "host@gmail.com", claims.Subject)
	assert.Equal(t, "host@gmail.com", host.Email)

	ghost, err := v.Codec.Issue("ghost@gmail.com", Access)
	require.NoError(t, err)
	_, _, err = v.Verify(ctx, ghost, Access)
	assert.ErrorIs(t, err, ErrUnknownPrincipal)
	assert.True(t, IsCredentialError(err))
}

func TestVerifier_RevokedRefresh(t *testing.T) {
	t.Parallel()

	v, _ := newHostVerifier(t)
	ctx := context.Background()

	p, err := v.Codec.IssuePair("host@gmail.com")
	require.NoError(t, err)

	claims, _, err := v.Verify(ctx, p.Refresh, Refresh)
	require.NoError(t, err)

	v.Revoker.(*MemoryRevoker).now = fixedClock(epoch)
	require.NoError(t, v.Revoke(ctx, claims))

	_, _, err = v.Verify(ctx, p.Refresh, Refresh)
	assert.ErrorIs(t, err, ErrRevoked)

	// Access tokens are not subject to revocation.
	_, _, err = v.Verify(ctx, p.Access, Access)
	assert.NoError(t, err)
}
