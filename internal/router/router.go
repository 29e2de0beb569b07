package router

import (
	"net/http"
	"strings"

	"ultichat/internal/handler"
	"ultichat/internal/middleware"
	"ultichat/internal/repository"
	"ultichat/internal/service"

	"github.com/gin-gonic/gin"
)

// Deps carries everything the routes need. Built once at startup.
type Deps struct {
	CORSAllowedOrigins string
	RateLimitAuthRPS   float64
	RateLimitChatRPS   float64

	JWT          *service.JWTService
	AuthSessions repository.AuthSessionRepositoryInterface

	Users        *handler.UserHandler
	Chat         *handler.ChatHandler
	Sessions     *handler.SessionHandler
	Transactions *handler.TransactionHandler
}

func Setup(d Deps) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware(d.CORSAllowedOrigins))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "UltiChat API is running")
	})

	authLimiter := middleware.NewRateLimiter(d.RateLimitAuthRPS, 10)
	chatLimiter := middleware.NewRateLimiter(d.RateLimitChatRPS, 5)
	requireAuth := middleware.JWTAuthMiddleware(d.JWT, d.AuthSessions)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authLimiter.RateLimitByIP(), d.Users.Register)
			auth.POST("/login", authLimiter.RateLimitByIP(), d.Users.Login)
			auth.GET("/me", requireAuth, d.Users.Me)
		}

		api.POST("/chat", requireAuth, chatLimiter.RateLimitByUser(), d.Chat.Chat)

		sessions := api.Group("/sessions")
		sessions.Use(requireAuth)
		{
			sessions.POST("/create", d.Sessions.Create)
			sessions.GET("", d.Sessions.List)
			sessions.GET("/:id/messages", d.Sessions.Messages)
		}

		transactions := api.Group("/transactions")
		transactions.Use(requireAuth)
		{
			transactions.GET("/spend", d.Transactions.SpendHistory)
			transactions.POST("/gift", d.Transactions.RedeemGift)
		}
	}

	return r
}

func corsMiddleware(origins string) gin.HandlerFunc {
	allowedOrigins := strings.Split(origins, ",")
	if len(allowedOrigins) == 0 || strings.TrimSpace(allowedOrigins[0]) == "" {
		allowedOrigins = []string{"*"}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			o = strings.TrimSpace(o)
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
		} else if allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
