package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"ultichat/internal/billing"
	"ultichat/internal/model"
	"ultichat/internal/repository"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidGiftCode     = errors.New("Invalid code")
	ErrGiftCodeUsed        = errors.New("Code already used")
	ErrMissingGiftCode     = errors.New("Code is required")
	ErrInvalidCreditAmount = errors.New("Amount must be positive")
)

const (
	defaultSpendLimit = 10
	maxSpendLimit     = 50
)

var spendModelPattern = regexp.MustCompile(`(?i)^Chat with\s+(.+)$`)

type TransactionService struct {
	transactions repository.TransactionRepositoryInterface
	gifts        repository.GiftRepositoryInterface
	users        repository.UserRepositoryInterface
}

func NewTransactionServiceWithRepo(transactions repository.TransactionRepositoryInterface, gifts repository.GiftRepositoryInterface, users repository.UserRepositoryInterface) *TransactionService {
	return &TransactionService{transactions: transactions, gifts: gifts, users: users}
}

// ClampSpendLimit maps a requested page size into [1, 50]; zero means default.
func ClampSpendLimit(limit int) int {
	switch {
	case limit == 0:
		return defaultSpendLimit
	case limit < 1:
		return 1
	case limit > maxSpendLimit:
		return maxSpendLimit
	}
	return limit
}

// SpendHistory lists recent spends newest first with positive amounts.
func (s *TransactionService) SpendHistory(ctx context.Context, userID string, limit int) ([]model.SpendItem, error) {
	rows, err := s.transactions.ListByType(ctx, userID, model.TransactionSpend, ClampSpendLimit(limit))
	if err != nil {
		return nil, err
	}

	items := make([]model.SpendItem, 0, len(rows))
	for _, t := range rows {
		items = append(items, model.SpendItem{
			CreatedAt: t.CreatedAt,
			Model:     spendModel(t.Description),
			Amount:    billing.FromMicros(t.AmountMicros).Abs().InexactFloat64(),
		})
	}
	return items, nil
}

func spendModel(description string) string {
	m := spendModelPattern.FindStringSubmatch(strings.TrimSpace(description))
	if m == nil {
		return description
	}
	return strings.TrimSpace(m[1])
}

func (s *TransactionService) RedeemGift(ctx context.Context, userID, code string) (*model.RedeemGiftResponse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingGiftCode
	}

	amount, balance, err := s.gifts.Redeem(ctx, code, userID)
	switch {
	case errors.Is(err, repository.ErrGiftCodeNotFound):
		return nil, ErrInvalidGiftCode
	case errors.Is(err, repository.ErrGiftAlreadyRedeemed):
		return nil, ErrGiftCodeUsed
	case errors.Is(err, repository.ErrUserNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"code":    code,
		"amount":  amount.String(),
	}).Info("gift: redeemed")

	return &model.RedeemGiftResponse{
		Amount:  amount.InexactFloat64(),
		Balance: balance.InexactFloat64(),
		Message: "Gift redeemed",
	}, nil
}

// Credit appends a deposit for the account with the given email.
func (s *TransactionService) Credit(ctx context.Context, email string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidCreditAmount
	}
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return decimal.Zero, err
	}
	if user == nil {
		return decimal.Zero, ErrUserNotFound
	}
	if description == "" {
		description = "Manual credit"
	}
	return s.users.Deposit(ctx, user.ID, amount, description)
}

func (s *TransactionService) AddGiftCode(ctx context.Context, code string, amount decimal.Decimal) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrMissingGiftCode
	}
	if !amount.IsPositive() {
		return ErrInvalidCreditAmount
	}
	return s.gifts.UpsertCode(ctx, code, amount)
}
