package main

import (
	"context"

	"ultichat/internal/billing"
	"ultichat/internal/config"
	"ultichat/internal/handler"
	"ultichat/internal/provider"
	"ultichat/internal/repository"
	"ultichat/internal/router"
	"ultichat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultGiftAmountUSD = 0.01

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db)
	authSessionRepo := repository.NewAuthSessionRepository(db)
	chatSessionRepo := repository.NewChatSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	giftRepo := repository.NewGiftRepository(db)

	transactionService := service.NewTransactionServiceWithRepo(transactionRepo, giftRepo, userRepo)
	seedGiftCodes(transactionService, cfg.GiftCodes)

	prices, fallback := ratesFromPricing(cfg.Pricing)
	priceTable := billing.NewPriceTable(prices, fallback)
	for _, mp := range priceTable.List() {
		log.WithFields(log.Fields{
			"model":  mp.Model,
			"input":  mp.Input.String(),
			"output": mp.Output.String(),
			"free":   mp.Free,
		}).Debug("price table entry")
	}
	if err := priceTable.Watch(cfg.File, func() (map[string]billing.Rates, billing.Rates, error) {
		pricing, err := config.LoadPricing(cfg.File)
		if err != nil {
			return nil, billing.Rates{}, err
		}
		p, f := ratesFromPricing(pricing)
		return p, f, nil
	}); err != nil {
		log.WithError(err).WithField("file", cfg.File).Warn("price table hot reload disabled")
	}
	defer priceTable.Stop()

	jwtService := service.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	userService := service.NewUserServiceWithRepo(userRepo, authSessionRepo, jwtService)
	sessionService := service.NewSessionServiceWithRepo(chatSessionRepo, messageRepo, cfg.Policy.DefaultSessionModel)
	chatService := service.NewChatServiceWithDeps(
		priceTable,
		userRepo,
		billing.NewEstimator(policyFromConfig(cfg.Policy)),
		provider.NewOpenRouter(cfg.Provider),
		chatSessionRepo,
		messageRepo,
	)

	if cfg.Provider.APIKey == "" {
		log.Warn("OPENROUTER_API_KEY is not set; chat requests must carry their own key")
	}

	r := router.Setup(router.Deps{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitAuthRPS:   cfg.RateLimitAuthRPS,
		RateLimitChatRPS:   cfg.RateLimitChatRPS,
		JWT:                jwtService,
		AuthSessions:       authSessionRepo,
		Users:              handler.NewUserHandler(userService),
		Chat:               handler.NewChatHandler(chatService),
		Sessions:           handler.NewSessionHandler(sessionService),
		Transactions:       handler.NewTransactionHandler(transactionService),
	})

	log.Infof("server listening on http://0.0.0.0:%s", cfg.ServerPort)
	return r.Run("0.0.0.0:" + cfg.ServerPort)
}

func seedGiftCodes(svc *service.TransactionService, codes map[string]float64) {
	for code, amount := range codes {
		if amount <= 0 {
			amount = defaultGiftAmountUSD
		}
		if err := svc.AddGiftCode(context.Background(), code, decimal.NewFromFloat(amount)); err != nil {
			log.WithError(err).WithField("code", code).Warn("seed gift code failed")
		}
	}
}

func policyFromConfig(p config.PolicyConfig) billing.Policy {
	return billing.Policy{
		MinBalance:          decimal.NewFromFloat(p.MinBalanceUSD),
		MaxPromptChars:      p.MaxPromptChars,
		MinOutputTokens:     p.MinOutputTokens,
		HardCapOutputTokens: p.HardCapOutputTokens,
		SafetyMultiplier:    decimal.NewFromFloat(p.SafetyMultiplier),
	}
}

func ratesFromPricing(p config.PricingConfig) (map[string]billing.Rates, billing.Rates) {
	prices := make(map[string]billing.Rates, len(p.Models))
	for id, e := range p.Models {
		prices[id] = billing.NewRates(e.Input, e.Output)
	}
	return prices, billing.NewRates(p.Default.Input, p.Default.Output)
}
