package service

import (
	"context"
	"errors"
	"fmt"

	"ultichat/internal/billing"
	"ultichat/internal/model"
	"ultichat/internal/provider"
	"ultichat/internal/repository"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrMissingFields     = errors.New("Missing required fields")
	ErrNoProviderKey     = errors.New("Server configuration error: No API Key")
	ErrBalanceFetch      = errors.New("Failed to fetch user balance")
	ErrBalanceUpdate     = errors.New("Failed to update balance")
	ErrPersistExchange   = errors.New("Failed to save messages")
	ErrProviderTransport = errors.New("OpenRouter API error")
)

// RateSource resolves per-token prices for a model id.
type RateSource interface {
	RateFor(modelID string) billing.Rates
}

// ChatService runs one budgeted, settled generation per call. It keeps no
// state between requests.
type ChatService struct {
	prices    RateSource
	ledger    billing.Ledger
	estimator *billing.Estimator
	settler   *billing.Settler
	generator provider.Generator
	sessions  repository.ChatSessionRepositoryInterface
	messages  repository.MessageRepositoryInterface
}

func NewChatServiceWithDeps(
	prices RateSource,
	ledger billing.Ledger,
	estimator *billing.Estimator,
	generator provider.Generator,
	sessions repository.ChatSessionRepositoryInterface,
	messages repository.MessageRepositoryInterface,
) *ChatService {
	return &ChatService{
		prices:    prices,
		ledger:    ledger,
		estimator: estimator,
		settler:   billing.NewSettler(ledger),
		generator: generator,
		sessions:  sessions,
		messages:  messages,
	}
}

func (s *ChatService) Chat(ctx context.Context, userID string, req *model.ChatRequest) (*model.ChatResponse, error) {
	if req.ModelID == "" || req.CurrentParts == nil {
		return nil, ErrMissingFields
	}

	var session *model.ChatSession
	if req.SessionID != "" {
		var err error
		session, err = s.sessions.GetByID(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("chat: load session: %w", err)
		}
		if session == nil || session.UserID != userID {
			return nil, ErrSessionNotFound
		}
	}

	rates := s.prices.RateFor(req.ModelID)
	policy := s.estimator.Policy()

	var preBalance decimal.NullDecimal
	balance := decimal.Zero
	if !rates.IsFree() {
		b, err := s.ledger.GetBalance(ctx, userID)
		if err != nil {
			log.WithError(err).WithField("user_id", userID).Error("chat: fetch balance failed")
			return nil, ErrBalanceFetch
		}
		if b.LessThanOrEqual(policy.MinBalance) {
			return nil, billing.ErrInsufficientBalance
		}
		balance = b
		preBalance = decimal.NewNullDecimal(b)
	}

	turns, err := s.buildTurns(ctx, session, req)
	if err != nil {
		return nil, err
	}
	trimmed := billing.TrimHistory(turns, policy.MaxPromptChars)

	est, err := s.estimator.Estimate(trimmed.Chars, rates, balance)
	if err != nil {
		return nil, err
	}

	if !s.generator.HasAPIKey() && req.APIKey == "" {
		return nil, ErrNoProviderKey
	}

	completion, err := s.generator.Generate(ctx, provider.Request{
		Model:           req.ModelID,
		Messages:        trimmed.Turns,
		MaxOutputTokens: est.MaxOutputTokens,
		APIKey:          req.APIKey,
	})
	if err != nil {
		var perr *provider.Error
		switch {
		case errors.As(err, &perr):
			return nil, perr
		case errors.Is(err, provider.ErrNoAPIKey):
			return nil, ErrNoProviderKey
		default:
			log.WithError(err).WithField("model", req.ModelID).Error("chat: provider call failed")
			return nil, fmt.Errorf("%w: %v", ErrProviderTransport, err)
		}
	}

	settlement, err := s.settler.Settle(ctx, billing.SettleRequest{
		AccountID:    userID,
		Model:        req.ModelID,
		Rates:        rates,
		ReportedCost: completion.Cost,
		Usage:        completion.Usage,
		PreBalance:   preBalance,
	})
	if err != nil {
		if errors.Is(err, billing.ErrInsufficientBalance) {
			return nil, err
		}
		log.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"model":   req.ModelID,
			"cost":    settlement.Cost.String(),
		}).Error("chat: settlement failed")
		return nil, ErrBalanceUpdate
	}

	if session != nil {
		if err := s.persist(ctx, session.ID, req.CurrentParts, completion, settlement); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user_id":    userID,
				"session_id": session.ID,
				"cost":       settlement.Cost.String(),
			}).Error("chat: persist exchange failed after charge")
			return nil, ErrPersistExchange
		}
	}

	return &model.ChatResponse{
		Reply:           completion.Reply,
		Usage:           provider.ToUsage(completion.Usage),
		Cost:            settlement.Cost.InexactFloat64(),
		Balance:         settlement.Balance.InexactFloat64(),
		Limited:         est.Limited || completion.Limited(),
		PromptTruncated: trimmed.Truncated,
		MaxTokens:       est.MaxOutputTokens,
	}, nil
}

// buildTurns assembles history plus the current user turn. A session's
// stored transcript stands in for history the client did not send.
func (s *ChatService) buildTurns(ctx context.Context, session *model.ChatSession, req *model.ChatRequest) ([]billing.Turn, error) {
	var turns []billing.Turn
	switch {
	case req.History != nil:
		turns = make([]billing.Turn, 0, len(req.History)+1)
		for _, h := range req.History {
			turns = append(turns, billing.Turn{Role: string(model.NormalizeRole(h.Role)), Text: h.Text()})
		}
	case session != nil:
		stored, err := s.messages.ListBySession(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("chat: load transcript: %w", err)
		}
		turns = make([]billing.Turn, 0, len(stored)+1)
		for _, m := range stored {
			turns = append(turns, billing.Turn{Role: string(m.Role), Text: model.JoinParts(m.Content)})
		}
	}
	return append(turns, billing.Turn{Role: string(model.RoleUser), Text: model.JoinParts(req.CurrentParts)}), nil
}

func (s *ChatService) persist(ctx context.Context, sessionID string, parts []model.Part, c *provider.Completion, st billing.Settlement) error {
	var promptTokens, completionTokens int64
	if c.Usage != nil {
		promptTokens = c.Usage.PromptTokens
		completionTokens = c.Usage.CompletionTokens
	}
	costMicros := billing.ToMicros(st.Cost)

	return s.messages.SaveExchange(ctx, sessionID,
		model.NewMessage{Role: model.RoleUser, Content: parts, TokensUsed: promptTokens},
		model.NewMessage{
			Role:       model.RoleAssistant,
			Content:    []model.Part{{Text: c.Reply}},
			TokensUsed: completionTokens,
			CostMicros: &costMicros,
		},
	)
}
