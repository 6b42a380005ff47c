package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"uptimewatch/internal/storage/memory"
)

type AuthTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	sessions *Sessions
	auth     *Authenticator
}

func (s *AuthTestSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.store = memory.New()
	s.sessions, err = NewSessions("test-secret", time.Hour)
	s.Require().NoError(err)
	s.auth = NewAuthenticator(s.store, s.sessions)
	s.Require().NoError(s.auth.EnsureAdmin(s.ctx, " Admin ", "correct horse"))
}

func (s *AuthTestSuite) TestLoginIssuesVerifiableToken() {
	token, expires, err := s.auth.Login(s.ctx, "ADMIN", "correct horse")
	s.Require().NoError(err)
	s.WithinDuration(time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := s.sessions.Verify(token)
	s.Require().NoError(err)
	s.Equal("admin", claims.Username)
}

func (s *AuthTestSuite) TestLoginRejectsBadCredentials() {
	_, _, err := s.auth.Login(s.ctx, "admin", "wrong password")
	s.ErrorIs(err, ErrInvalidCredentials)

	_, _, err = s.auth.Login(s.ctx, "nobody", "correct horse")
	s.ErrorIs(err, ErrInvalidCredentials)

	_, _, err = s.auth.Login(s.ctx, "", "")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *AuthTestSuite) TestEnsureAdminKeepsExistingPassword() {
	s.Require().NoError(s.auth.EnsureAdmin(s.ctx, "admin", "another password"))

	_, _, err := s.auth.Login(s.ctx, "admin", "correct horse")
	s.NoError(err)
	_, _, err = s.auth.Login(s.ctx, "admin", "another password")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *AuthTestSuite) TestEnsureAdminRejectsShortPassword() {
	s.Error(s.auth.EnsureAdmin(s.ctx, "ops", "short"))
	s.NoError(s.auth.EnsureAdmin(s.ctx, "", ""))
}

func (s *AuthTestSuite) TestVerifyRejectsTamperedAndExpired() {
	token, _, err := s.sessions.Issue("admin")
	s.Require().NoError(err)

	_, err = s.sessions.Verify(token + "x")
	s.ErrorIs(err, ErrInvalidToken)

	other, err := NewSessions("other-secret", time.Hour)
	s.Require().NoError(err)
	_, err = other.Verify(token)
	s.ErrorIs(err, ErrInvalidToken)

	s.sessions.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.sessions.Verify(token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *AuthTestSuite) TestVerifyRejectsOtherAlgorithms() {
	claims := Claims{Username: "admin", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	s.Require().NoError(err)

	_, err = s.sessions.Verify(unsigned)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *AuthTestSuite) TestNewSessionsNeedsSecret() {
	_, err := NewSessions("", time.Hour)
	s.Error(err)

	sessions, err := NewSessions("x", 0)
	s.Require().NoError(err)
	s.Equal(DefaultSessionTTL, sessions.TTL())
}

func (s *AuthTestSuite) TestPasswordHashing() {
	hash, err := HashPassword("hunter22")
	s.Require().NoError(err)
	s.NotEqual("hunter22", hash)
	s.True(CheckPassword(hash, "hunter22"))
	s.False(CheckPassword(hash, "hunter23"))
}

func TestAuthTestSuite(t *testing.T) {
	suite.Run(t, new(AuthTestSuite))
}
