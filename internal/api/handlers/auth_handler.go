package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/paperpilot/paperpilot/internal/config"
	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/email"
	"github.com/paperpilot/paperpilot/internal/models"
)

const (
	otpLength     = 6
	otpTTL        = 5 * time.Minute
	resetTokenTTL = 10 * time.Minute
	jwtTTL        = 90 * 24 * time.Hour
)

type AuthHandler struct {
	dbclient core.DbClient
	mailer   email.Mailer
	cfg      *config.Config
	logger   *zap.Logger
}

func NewAuthHandler(dbclient core.DbClient, mailer email.Mailer, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{dbclient: dbclient, mailer: mailer, cfg: cfg, logger: logger}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || len(req.Password) < 5 {
		http.Error(w, "email and a password of at least 5 characters are required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "could not process password", http.StatusInternalServerError)
		return
	}

	otp, err := randomOTP()
	if err != nil {
		http.Error(w, "could not generate verification code", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		OTPHash:      hashToken(otp),
		OTPExpiresAt: time.Now().Add(otpTTL),
	}

	if err := h.dbclient.CreateUser(r.Context(), user); err != nil {
		http.Error(w, "user already exists", http.StatusConflict)
		return
	}

	if err := h.mailer.SendOTP(r.Context(), user.Email, user.Name, otp); err != nil {
		h.logger.Error("failed to send verification email",
			zap.String("email", user.Email), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "account created, check your email for the verification code",
	})
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	user, err := h.dbclient.GetUserByEmail(r.Context(), req.Email)
	if err != nil || user == nil {
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}
	if user.OTPHash == "" || user.OTPHash != hashToken(req.OTP) || time.Now().After(user.OTPExpiresAt) {
		http.Error(w, "invalid or expired code", http.StatusUnauthorized)
		return
	}

	if err := h.dbclient.UpdateUserVerification(r.Context(), user.ID, true); err != nil {
		http.Error(w, "verification failed", http.StatusInternalServerError)
		return
	}

	token, err := h.generateJWT(user.ID)
	if err != nil {
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	user, err := h.dbclient.GetUserByEmail(r.Context(), req.Email)
	if err != nil || user == nil ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !user.Verified {
		http.Error(w, "email not verified", http.StatusForbidden)
		return
	}

	token, err := h.generateJWT(user.ID)
	if err != nil {
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	// Always answer the same way so the endpoint can't be used to probe
	// which emails exist.
	respond := func() {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "if the account exists, a reset link has been sent",
		})
	}

	user, err := h.dbclient.GetUserByEmail(r.Context(), req.Email)
	if err != nil || user == nil {
		respond()
		return
	}

	token, err := randomToken()
	if err != nil {
		http.Error(w, "could not generate reset token", http.StatusInternalServerError)
		return
	}
	if err := h.dbclient.SetUserResetToken(r.Context(), user.ID, hashToken(token), time.Now().Add(resetTokenTTL)); err != nil {
		http.Error(w, "could not store reset token", http.StatusInternalServerError)
		return
	}

	resetURL := fmt.Sprintf("https://paperpilot.app/reset-password/%s", token)
	if err := h.mailer.SendPasswordReset(r.Context(), user.Email, user.Name, resetURL); err != nil {
		h.logger.Error("failed to send reset email",
			zap.String("email", user.Email), zap.Error(err))
	}
	respond()
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 5 {
		http.Error(w, "password must be at least 5 characters", http.StatusBadRequest)
		return
	}

	user, err := h.dbclient.GetUserByEmail(r.Context(), req.Email)
	if err != nil || user == nil ||
		user.ResetHash == "" || user.ResetHash != hashToken(req.Token) ||
		time.Now().After(user.ResetExpiresAt) {
		http.Error(w, "invalid or expired reset token", http.StatusUnauthorized)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "could not process password", http.StatusInternalServerError)
		return
	}
	if err := h.dbclient.UpdateUserPassword(r.Context(), user.ID, string(hash)); err != nil {
		http.Error(w, "could not update password", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// generateJWT creates a signed token with the user ID claim.
func (h *AuthHandler) generateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(jwtTTL).Unix(),
		"iat":     time.Now().Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(h.cfg.JWTSecret))
}

// randomOTP returns a numeric code of otpLength digits.
func randomOTP() (string, error) {
	max := big.NewInt(1)
	for range otpLength {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n), nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashToken stores only a digest of OTPs and reset tokens.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
