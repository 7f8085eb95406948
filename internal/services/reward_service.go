package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pocketpay/backend/internal/config"
	"github.com/pocketpay/backend/internal/middleware"
	"github.com/pocketpay/backend/internal/models"
)

// RewardService posts reward credits against the append-only transactions
// ledger. Every credit mutates the user balance and inserts exactly one
// ledger row inside the caller's database transaction, so both writes
// commit or neither does.
type RewardService struct {
	db     *sql.DB
	config *config.RewardConfig
	logger *log.Logger
}

func NewRewardService(db *sql.DB, logger *log.Logger) *RewardService {
	return &RewardService{
		db:     db,
		config: config.LoadRewardConfig(),
		logger: logger,
	}
}

// SignupBonus returns the configured registration credit amount.
func (s *RewardService) SignupBonus() int64 {
	return s.config.SignupBonus
}

// CreditSignupBonusTx credits the signup bonus to userID within tx.
func (s *RewardService) CreditSignupBonusTx(tx *sql.Tx, userID int) error {
	return s.creditTx(tx, userID, s.config.SignupBonus, config.RewardType, config.SignupBonusReason)
}

func (s *RewardService) creditTx(tx *sql.Tx, userID int, amount int64, rewardType, reason string) error {
	if err := s.updateBalance(tx, userID, amount); err != nil {
		return err
	}
	return s.insertLedgerEntry(tx, userID, amount, rewardType, reason)
}

func (s *RewardService) updateBalance(tx *sql.Tx, userID int, amount int64) error {
	result, err := tx.Exec(`
		UPDATE users
		SET balance = balance + $1
		WHERE id = $2`,
		amount, userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no user row for id %d", userID)
	}

	return nil
}

func (s *RewardService) insertLedgerEntry(tx *sql.Tx, userID int, amount int64, rewardType, reason string) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (user_id, amount, type, reason, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, amount, rewardType, reason, uuid.NewString(), time.Now())
	return err
}

// ListByUser returns the user's ledger entries, newest first.
func (s *RewardService) ListByUser(ctx context.Context, userID, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, type, reason, reference, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Reason, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}

// ListUserTransactions retrieves the authenticated user's reward ledger
// @Summary List reward transactions
// @Description Get the authenticated user's reward ledger entries, newest first
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries to return (default: 20, max: 100)"
// @Success 200 {object} object{transactions=[]models.Transaction,count=int}
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /auth/transactions [get]
func (s *RewardService) ListUserTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	transactions, err := s.ListByUser(r.Context(), user.ID, limit)
	if err != nil {
		s.logger.Printf("[REWARD] Failed to list transactions for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}
