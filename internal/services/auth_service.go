package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pocketpay/backend/internal/middleware"
	"github.com/pocketpay/backend/internal/models"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	reward    *RewardService
	validator *validator.Validate
	logger    *log.Logger
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email    string `json:"email" validate:"omitempty,email" example:"user@example.com"`      // Optional email
	Phone    string `json:"phone" validate:"omitempty,min=7,max=20" example:"+2348012345678"` // Optional phone number
	Password string `json:"password" validate:"required,min=6" example:"password123"`         // User password
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required" example:"user@example.com"` // Email or phone number
	Password   string `json:"password" validate:"required" example:"password123"`        // User password
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  models.User `json:"user"`                                                    // Public user projection
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, logger *log.Logger) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		reward:    NewRewardService(db, logger),
		validator: validator.New(),
		logger:    logger,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user with email and/or phone plus a password; credits the signup bonus
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} services.ErrorResponse "Invalid request or identifier already registered"
// @Failure 500 {object} services.ErrorResponse "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		s.logger.Printf("[AUTH] Registration failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		s.logger.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.logger.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Email == "" && req.Phone == "" {
		s.logger.Printf("[AUTH] Registration rejected - neither email nor phone given")
		SendErrorResponse(w, "email or phone is required", http.StatusBadRequest, nil)
		return
	}

	req.Email = strings.ToLower(req.Email)
	s.logger.Printf("[AUTH] Registration request: email=%s phone=%s", req.Email, req.Phone)

	// Email conflict is checked before phone; the first hit is reported.
	if req.Email != "" {
		taken, err := s.identifierTaken(r.Context(), "email", req.Email)
		if err != nil {
			s.logger.Printf("[AUTH] Email lookup failed for %s: %v", req.Email, err)
			SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
			return
		}
		if taken {
			s.logger.Printf("[AUTH] Registration rejected - email already registered: %s", req.Email)
			SendErrorResponse(w, "email already registered", http.StatusBadRequest, nil)
			return
		}
	}
	if req.Phone != "" {
		taken, err := s.identifierTaken(r.Context(), "phone", req.Phone)
		if err != nil {
			s.logger.Printf("[AUTH] Phone lookup failed for %s: %v", req.Phone, err)
			SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
			return
		}
		if taken {
			s.logger.Printf("[AUTH] Registration rejected - phone already registered: %s", req.Phone)
			SendErrorResponse(w, "phone already registered", http.StatusBadRequest, nil)
			return
		}
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		s.logger.Printf("[AUTH] Password hashing failed: %v", err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	// User insert, bonus credit and ledger entry commit as one unit.
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Printf("[AUTH] Transaction start failed: %v", err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var userID int
	var createdAt time.Time
	err = tx.QueryRow(`
		INSERT INTO users (email, phone, password_hash, balance, is_active, created_at)
		VALUES ($1, $2, $3, 0, true, NOW())
		RETURNING id, created_at`,
		nullable(req.Email), nullable(req.Phone), hashedPassword,
	).Scan(&userID, &createdAt)
	if err != nil {
		s.logger.Printf("[AUTH] User creation failed: %v", err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	if err := s.reward.CreditSignupBonusTx(tx, userID); err != nil {
		s.logger.Printf("[AUTH] Signup bonus credit failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		s.logger.Printf("[AUTH] Transaction commit failed: %v", err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	token, err := generateJWT(userID)
	if err != nil {
		s.logger.Printf("[AUTH] JWT generation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		User: models.User{
			ID:        userID,
			Email:     req.Email,
			Phone:     req.Phone,
			Balance:   s.reward.SignupBonus(),
			IsActive:  true,
			CreatedAt: createdAt,
		},
	}

	s.logger.Printf("[AUTH] Registration successful for user %d", userID)
	writeJSON(w, http.StatusOK, response)
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate with an email-or-phone identifier and a password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} services.ErrorResponse "Invalid request or account disabled"
// @Failure 401 {object} services.ErrorResponse "Invalid credentials"
// @Failure 500 {object} services.ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		s.logger.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		s.logger.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.logger.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	s.logger.Printf("[AUTH] Login attempt: identifier=%s", req.Identifier)

	user, err := s.fetchUserByIdentifier(r.Context(), req.Identifier)
	// Unknown identifier and wrong password collapse to the same response
	// so callers cannot probe which identifiers are registered.
	if err != nil || !verifyPassword(req.Password, user.PasswordHash) {
		if err != nil && err != sql.ErrNoRows {
			s.logger.Printf("[AUTH] Login lookup failed for %s: %v", req.Identifier, err)
		} else {
			s.logger.Printf("[AUTH] Login failed: identifier=%s", req.Identifier)
		}
		SendErrorResponse(w, "invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !user.IsActive {
		s.logger.Printf("[AUTH] Login denied (disabled): user_id=%d", user.ID)
		SendErrorResponse(w, "account disabled", http.StatusBadRequest, nil)
		return
	}

	token, err := generateJWT(user.ID)
	if err != nil {
		s.logger.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	s.logger.Printf("[AUTH] Login successful for user %d", user.ID)
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: *user})
}

// Me returns the authenticated user's account
// @Summary Get current user
// @Description Get the authenticated user's public projection
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User "Current user"
// @Failure 401 {object} services.ErrorResponse "Unauthorized"
// @Router /auth/me [get]
func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		s.logger.Printf("[AUTH] Unauthorized account request - no user in context")
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	s.logger.Printf("[AUTH] Fetched current user: user_id=%d", user.ID)
	writeJSON(w, http.StatusOK, user)
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist the presented token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(authHeader, "Bearer "); found && token != "" {
		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				s.logger.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (s *AuthService) identifierTaken(ctx context.Context, column, value string) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM users WHERE %s = $1)", column)
	err := s.db.QueryRowContext(ctx, query, value).Scan(&exists)
	return exists, err
}

func (s *AuthService) fetchUserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	var user models.User
	var email, phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, phone, password_hash, balance, is_active, created_at
		FROM users
		WHERE email = $1 OR phone = $1
		LIMIT 1`,
		identifier,
	).Scan(&user.ID, &email, &phone, &user.PasswordHash, &user.Balance, &user.IsActive, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	user.Phone = phone.String
	return &user, nil
}

func generateJWT(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.Itoa(userID),
		"exp": time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
