package service

import (
	"context"
	"errors"
	"strings"

	"ultichat/internal/model"
	"ultichat/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("Session not found")
	ErrAccessDenied    = errors.New("Access denied")
)

type SessionService struct {
	sessions     repository.ChatSessionRepositoryInterface
	messages     repository.MessageRepositoryInterface
	defaultModel string
}

func NewSessionServiceWithRepo(sessions repository.ChatSessionRepositoryInterface, messages repository.MessageRepositoryInterface, defaultModel string) *SessionService {
	return &SessionService{sessions: sessions, messages: messages, defaultModel: defaultModel}
}

func (s *SessionService) Create(ctx context.Context, userID, modelID string) (*model.ChatSession, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		modelID = s.defaultModel
	}
	session := &model.ChatSession{
		UserID:  userID,
		ModelID: modelID,
		Title:   model.DefaultSessionTitle,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) List(ctx context.Context, userID string) ([]*model.ChatSession, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*model.ChatSession{}
	}
	return sessions, nil
}

// Messages returns the transcript of a session the user owns.
func (s *SessionService) Messages(ctx context.Context, userID, sessionID string) ([]*model.Message, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, ErrAccessDenied
	}

	msgs, err := s.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, nil
}
