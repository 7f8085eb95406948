package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pocketpay/backend/internal/models"
	"github.com/spf13/viper"
)

type contextKey string

const userKey contextKey = "currentUser"

// Auth resolves the authenticated user from a bearer token. It is the
// shared precondition for every protected route: RequireUser either stores
// a *models.User in the request context or terminates the request with 401.
// Verification failures are logged but never echoed back to the caller.
type Auth struct {
	db     *sql.DB
	redis  *redis.Client
	logger *log.Logger
}

func NewAuth(db *sql.DB, redisClient *redis.Client, logger *log.Logger) *Auth {
	return &Auth{
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

// RequireUser guards a route behind bearer-token authentication.
func (a *Auth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := a.resolveUser(r)
		if !ok {
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

// ContextWithUser returns a context carrying the authenticated user.
func ContextWithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext extracts the authenticated user stored by RequireUser.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

func (a *Auth) resolveUser(r *http.Request) (*models.User, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		a.logger.Printf("[AUTH] Unauthorized access: missing Authorization header")
		return nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		a.logger.Printf("[AUTH] Unauthorized access: invalid auth scheme or token missing")
		return nil, false
	}
	tokenString := strings.TrimSpace(parts[1])

	if a.isBlacklisted(r.Context(), tokenString) {
		a.logger.Printf("[AUTH] Unauthorized access: blacklisted token")
		return nil, false
	}

	subject, err := verifyToken(tokenString)
	if err != nil {
		a.logger.Printf("[AUTH] Unauthorized access: invalid or expired token: %v", err)
		return nil, false
	}

	if !isDigits(subject) {
		a.logger.Printf("[AUTH] Unauthorized access: token subject not numeric")
		return nil, false
	}
	userID, _ := strconv.Atoi(subject)

	user, err := a.fetchUser(r.Context(), userID)
	if err != nil {
		a.logger.Printf("[AUTH] Unauthorized access: user not found for token sub=%s", subject)
		return nil, false
	}

	return user, true
}

func (a *Auth) isBlacklisted(ctx context.Context, token string) bool {
	if a.redis == nil {
		return false
	}
	key := fmt.Sprintf("blacklist:%s", token)
	n, err := a.redis.Exists(ctx, key).Result()
	if err != nil {
		a.logger.Printf("[AUTH] Blacklist check failed: %v", err)
		return false
	}
	return n > 0
}

func (a *Auth) fetchUser(ctx context.Context, userID int) (*models.User, error) {
	var user models.User
	var email, phone sql.NullString
	err := a.db.QueryRowContext(ctx, `
		SELECT id, email, phone, password_hash, balance, is_active, created_at
		FROM users
		WHERE id = $1`,
		userID,
	).Scan(&user.ID, &email, &phone, &user.PasswordHash, &user.Balance, &user.IsActive, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	user.Phone = phone.String
	return &user, nil
}

func verifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("missing subject claim")
	}
	return subject, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "not authenticated"})
}
