package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paperpilot/paperpilot/internal/core/coretest"
)

// captureMailer records what would have been emailed so tests can replay
// OTPs and reset tokens.
type captureMailer struct {
	otp      string
	resetURL string
}

func (m *captureMailer) SendOTP(ctx context.Context, to, name, otp string) error {
	m.otp = otp
	return nil
}

func (m *captureMailer) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	m.resetURL = resetURL
	return nil
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func newAuthFixture() (*AuthHandler, *coretest.FakeDB, *captureMailer) {
	db := coretest.NewFakeDB()
	mailer := &captureMailer{}
	h := NewAuthHandler(db, mailer, testConfig(), zap.NewNop())
	return h, db, mailer
}

func signup(t *testing.T, h *AuthHandler, email, password string) {
	t.Helper()
	rec := postJSON(t, h.Signup, map[string]string{
		"name": "Ada", "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestSignupCreatesUnverifiedUserAndSendsOTP(t *testing.T) {
	h, db, mailer := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")

	require.Len(t, db.Users, 1)
	for _, u := range db.Users {
		assert.False(t, u.Verified)
		assert.NotEmpty(t, u.OTPHash)
		assert.NotEqual(t, "secret1", u.PasswordHash)
	}
	assert.Len(t, mailer.otp, 6)
}

func TestSignupRejectsShortPassword(t *testing.T) {
	h, db, _ := newAuthFixture()
	rec := postJSON(t, h.Signup, map[string]string{"email": "ada@example.com", "password": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, db.Users)
}

func TestSignupDuplicateEmail(t *testing.T) {
	h, _, _ := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")

	rec := postJSON(t, h.Signup, map[string]string{"email": "ada@example.com", "password": "secret2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVerifyEmailIssuesToken(t *testing.T) {
	h, db, mailer := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")

	rec := postJSON(t, h.VerifyEmail, map[string]string{"email": "ada@example.com", "otp": mailer.otp})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(resp["token"], claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)

	for _, u := range db.Users {
		assert.True(t, u.Verified)
		assert.Equal(t, claims["user_id"], u.ID)
	}
}

func TestVerifyEmailWrongCode(t *testing.T) {
	h, _, _ := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")

	rec := postJSON(t, h.VerifyEmail, map[string]string{"email": "ada@example.com", "otp": "000000"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyEmailExpiredCode(t *testing.T) {
	h, db, mailer := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")
	for _, u := range db.Users {
		u.OTPExpiresAt = time.Now().Add(-time.Minute)
	}

	rec := postJSON(t, h.VerifyEmail, map[string]string{"email": "ada@example.com", "otp": mailer.otp})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	h, _, mailer := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")

	rec := postJSON(t, h.Login, map[string]string{"email": "ada@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postJSON(t, h.VerifyEmail, map[string]string{"email": "ada@example.com", "otp": mailer.otp})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.Login, map[string]string{"email": "ada@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	h, _, _ := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")

	rec := postJSON(t, h.Login, map[string]string{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h.Login, map[string]string{"email": "nobody@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	h, _, mailer := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")

	known := postJSON(t, h.ForgotPassword, map[string]string{"email": "ada@example.com"})
	unknown := postJSON(t, h.ForgotPassword, map[string]string{"email": "nobody@example.com"})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.NotEmpty(t, mailer.resetURL)
}

func TestPasswordResetFlow(t *testing.T) {
	h, _, mailer := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")
	rec := postJSON(t, h.VerifyEmail, map[string]string{"email": "ada@example.com", "otp": mailer.otp})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.ForgotPassword, map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, mailer.resetURL)

	parts := strings.Split(mailer.resetURL, "/")
	token := parts[len(parts)-1]

	rec = postJSON(t, h.ResetPassword, map[string]string{
		"email": "ada@example.com", "token": token, "password": "newsecret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = postJSON(t, h.Login, map[string]string{"email": "ada@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "old password must stop working")

	rec = postJSON(t, h.Login, map[string]string{"email": "ada@example.com", "password": "newsecret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetPasswordBadToken(t *testing.T) {
	h, _, _ := newAuthFixture()
	signup(t, h, "ada@example.com", "secret1")
	rec := postJSON(t, h.ForgotPassword, map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.ResetPassword, map[string]string{
		"email": "ada@example.com", "token": "deadbeef", "password": "newsecret",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
