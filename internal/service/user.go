package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"ultichat/internal/billing"
	"ultichat/internal/model"
	"ultichat/internal/repository"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingCredentials = errors.New("Email and password are required")
	ErrEmailExists        = errors.New("Email already registered")
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrUserNotFound       = errors.New("User not found")
)

type UserService struct {
	repo     repository.UserRepositoryInterface
	sessions repository.AuthSessionRepositoryInterface
	jwt      *JWTService
}

// NewUserServiceWithRepo 使用指定的仓库实现创建 UserService
func NewUserServiceWithRepo(repo repository.UserRepositoryInterface, sessions repository.AuthSessionRepositoryInterface, jwt *JWTService) *UserService {
	return &UserService{repo: repo, sessions: sessions, jwt: jwt}
}

func (s *UserService) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrMissingCredentials
	}

	exists, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{Email: email, PasswordHash: string(hashedPassword)}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	// 注册后直接登录
	return s.signIn(ctx, user)
}

func (s *UserService) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.signIn(ctx, user)
}

func (s *UserService) signIn(ctx context.Context, user *model.User) (*model.AuthResponse, error) {
	now := time.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("user: update last_login failed")
	} else {
		user.LastLogin = &now
	}

	token, expiresAt, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	if s.sessions != nil {
		if err := s.sessions.Upsert(ctx, token, user.ID); err != nil {
			log.WithError(err).WithField("user_id", user.ID).Warn("user: record auth session failed")
		}
	}

	return &model.AuthResponse{
		User:    user,
		Session: &model.AuthSession{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt},
		Profile: toProfile(user),
	}, nil
}

func (s *UserService) Me(ctx context.Context, userID string) (*model.AuthResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return &model.AuthResponse{User: user, Profile: toProfile(user)}, nil
}

func toProfile(u *model.User) *model.Profile {
	return &model.Profile{
		ID:         u.ID,
		Email:      u.Email,
		UsdBalance: billing.FromMicros(u.BalanceMicros).InexactFloat64(),
		LastLogin:  u.LastLogin,
		CreatedAt:  u.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
