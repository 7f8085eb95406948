package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/pocketpay/backend/internal/middleware"
	"github.com/pocketpay/backend/internal/models"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setupTestConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupTestConfig()
	service := NewAuthService(db, nil, testLogger())

	t.Run("successful registration credits signup bonus", func(t *testing.T) {
		req := RegisterRequest{
			Email:    "test@example.com",
			Password: "password123",
		}

		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM users WHERE email = \$1\)`).
			WithArgs(req.Email).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(req.Email, nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))
		mock.ExpectExec(`UPDATE users\s+SET balance = balance \+ \$1\s+WHERE id = \$2`).
			WithArgs(int64(1000), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(1, int64(1000), "reward", "signup_bonus", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, req.Email, response.User.Email)
		assert.Equal(t, int64(1000), response.User.Balance)
		assert.True(t, response.User.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing both email and phone", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{Password: "password123"})
		r := httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email already registered", func(t *testing.T) {
		req := RegisterRequest{Email: "taken@example.com", Password: "password123"}

		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM users WHERE email = \$1\)`).
			WithArgs(req.Email).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "email already registered", response.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("phone already registered", func(t *testing.T) {
		req := RegisterRequest{Phone: "+2348012345678", Password: "password123"}

		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM users WHERE phone = \$1\)`).
			WithArgs(req.Phone).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "phone already registered", response.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupTestConfig()
	service := NewAuthService(db, nil, testLogger())

	userColumns := []string{"id", "email", "phone", "password_hash", "balance", "is_active", "created_at"}

	t.Run("successful login by email", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, phone, password_hash, balance, is_active, created_at FROM users").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "test@example.com", nil, hashedPassword, 1000, true, time.Now()))

		body, _ := json.Marshal(LoginRequest{Identifier: "test@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, int64(1000), response.User.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("successful login by phone", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, phone, password_hash, balance, is_active, created_at FROM users").
			WithArgs("+2348012345678").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(2, nil, "+2348012345678", hashedPassword, 0, true, time.Now()))

		body, _ := json.Marshal(LoginRequest{Identifier: "+2348012345678", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown identifier and wrong password are indistinguishable", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, phone, password_hash, balance, is_active, created_at FROM users").
			WithArgs("nobody@example.com").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(LoginRequest{Identifier: "nobody@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		unknownBody := w.Body.String()

		hashedPassword, _ := hashPassword("password123")
		mock.ExpectQuery("SELECT id, email, phone, password_hash, balance, is_active, created_at FROM users").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "test@example.com", nil, hashedPassword, 1000, true, time.Now()))

		body, _ = json.Marshal(LoginRequest{Identifier: "test@example.com", Password: "wrongpass"})
		r = httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
		w = httptest.NewRecorder()
		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, unknownBody, w.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("disabled account with correct credentials", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, phone, password_hash, balance, is_active, created_at FROM users").
			WithArgs("disabled@example.com").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(3, "disabled@example.com", nil, hashedPassword, 500, false, time.Now()))

		body, _ := json.Marshal(LoginRequest{Identifier: "disabled@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "account disabled", response.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_Logout(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupTestConfig()
	redisClient, redisMock := redismock.NewClientMock()
	service := NewAuthService(db, redisClient, testLogger())

	t.Run("blacklists the presented token", func(t *testing.T) {
		redisMock.ExpectSet("blacklist:some-token", "1", 24*time.Hour).SetVal("OK")

		r := httptest.NewRequest("POST", "/api/auth/logout", nil)
		r.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("no token is still a successful logout", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/auth/logout", nil)
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthService_Me(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupTestConfig()
	service := NewAuthService(db, nil, testLogger())

	t.Run("returns the resolved user without the password hash", func(t *testing.T) {
		user := &models.User{
			ID:           1,
			Email:        "test@example.com",
			PasswordHash: "secret-hash",
			Balance:      1000,
			IsActive:     true,
		}

		r := httptest.NewRequest("GET", "/api/auth/me", nil)
		r = r.WithContext(middleware.ContextWithUser(r.Context(), user))
		w := httptest.NewRecorder()

		service.Me(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "secret-hash")
		var response models.User
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, 1, response.ID)
		assert.Equal(t, int64(1000), response.Balance)
	})

	t.Run("unauthorized without a resolved user", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/auth/me", nil)
		w := httptest.NewRecorder()

		service.Me(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setupTestConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
	assert.False(t, verifyPassword(password, "not-a-valid-hash"))
}

func TestGenerateJWT(t *testing.T) {
	setupTestConfig()

	token, err := generateJWT(123)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}
