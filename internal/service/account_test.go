package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"ultichat/internal/billing"
	"ultichat/internal/database"
	"ultichat/internal/model"
	"ultichat/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type services struct {
	db           *sql.DB
	users        *UserService
	sessions     *SessionService
	transactions *TransactionService
	jwt          *JWTService
	userRepo     *repository.UserRepository
}

func newServices(t *testing.T) *services {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	userRepo := repository.NewUserRepository(db)
	jwt := NewJWTService("secret", "ultichat", "ultichat-users")
	return &services{
		db:       db,
		jwt:      jwt,
		userRepo: userRepo,
		users:    NewUserServiceWithRepo(userRepo, repository.NewAuthSessionRepository(db), jwt),
		sessions: NewSessionServiceWithRepo(repository.NewChatSessionRepository(db), repository.NewMessageRepository(db), "xiaomi/mimo-v2-flash"),
		transactions: NewTransactionServiceWithRepo(
			repository.NewTransactionRepository(db),
			repository.NewGiftRepository(db),
			userRepo,
		),
	}
}

func TestUserService_RegisterLoginMe(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)

	_, err := s.users.Register(ctx, &model.RegisterRequest{Email: "", Password: "x"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	resp, err := s.users.Register(ctx, &model.RegisterRequest{Email: " A@Example.com ", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", resp.User.Email)
	require.NotNil(t, resp.Session)
	assert.NotEmpty(t, resp.Session.AccessToken)
	assert.Zero(t, resp.Profile.UsdBalance)

	claims, err := s.jwt.ValidateToken(resp.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	_, err = s.users.Register(ctx, &model.RegisterRequest{Email: "a@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = s.users.Login(ctx, &model.LoginRequest{Email: "a@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := s.users.Login(ctx, &model.LoginRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.NotNil(t, login.User.LastLogin)

	me, err := s.users.Me(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", me.Profile.Email)
	assert.NotNil(t, me.Profile.LastLogin)

	_, err = s.users.Me(ctx, "nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestJWTService_RejectsForeignTokens(t *testing.T) {
	issuer := NewJWTService("secret", "ultichat", "ultichat-users")
	token, _, err := issuer.GenerateToken("u1", "a@example.com")
	require.NoError(t, err)

	_, err = NewJWTService("other", "ultichat", "ultichat-users").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = NewJWTService("secret", "someone", "ultichat-users").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidIssuer)
	_, err = NewJWTService("secret", "ultichat", "others").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidAudience)
}

func TestSessionService(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	owner, err := s.users.Register(ctx, &model.RegisterRequest{Email: "o@example.com", Password: "pw"})
	require.NoError(t, err)
	other, err := s.users.Register(ctx, &model.RegisterRequest{Email: "x@example.com", Password: "pw"})
	require.NoError(t, err)

	session, err := s.sessions.Create(ctx, owner.User.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "xiaomi/mimo-v2-flash", session.ModelID)
	assert.Equal(t, model.DefaultSessionTitle, session.Title)

	list, err := s.sessions.List(ctx, owner.User.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty, err := s.sessions.List(ctx, other.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	msgs, err := s.sessions.Messages(ctx, owner.User.ID, session.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.sessions.Messages(ctx, other.User.ID, session.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestTransactionService_GiftAndHistory(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	reg, err := s.users.Register(ctx, &model.RegisterRequest{Email: "g@example.com", Password: "pw"})
	require.NoError(t, err)
	userID := reg.User.ID

	require.NoError(t, s.transactions.AddGiftCode(ctx, "WINTER", decimal.RequireFromString("0.01")))

	_, err = s.transactions.RedeemGift(ctx, userID, "NOPE")
	assert.ErrorIs(t, err, ErrInvalidGiftCode)

	redeemed, err := s.transactions.RedeemGift(ctx, userID, "WINTER")
	require.NoError(t, err)
	assert.InDelta(t, 0.01, redeemed.Balance, 1e-12)

	_, err = s.transactions.RedeemGift(ctx, userID, "WINTER")
	assert.ErrorIs(t, err, ErrGiftCodeUsed)

	balance, err := s.userRepo.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("0.01")))

	_, err = s.userRepo.Spend(ctx, userID, decimal.RequireFromString("0.002"), billing.Description("openai/gpt-4o-mini"))
	require.NoError(t, err)

	items, err := s.transactions.SpendHistory(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "openai/gpt-4o-mini", items[0].Model)
	assert.InDelta(t, 0.002, items[0].Amount, 1e-12)

	credited, err := s.transactions.Credit(ctx, "G@example.com", decimal.RequireFromString("1"), "")
	require.NoError(t, err)
	assert.True(t, credited.Equal(decimal.RequireFromString("1.008")))

	_, err = s.transactions.Credit(ctx, "nobody@example.com", decimal.RequireFromString("1"), "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestClampSpendLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 10},
		{-5, 1},
		{1, 1},
		{25, 25},
		{50, 50},
		{500, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampSpendLimit(tt.in), "limit %d", tt.in)
	}
}

func TestSpendModel(t *testing.T) {
	assert.Equal(t, "openai/gpt-4o-mini", spendModel("Chat with openai/gpt-4o-mini"))
	assert.Equal(t, "m", spendModel("Chat with   m "))
	assert.Equal(t, "m", spendModel("chat with m"))
	assert.Equal(t, "Manual debit", spendModel("Manual debit"))
}
