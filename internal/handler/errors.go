package handler

import (
	"errors"
	"net/http"

	"ultichat/internal/billing"
	"ultichat/internal/provider"
	"ultichat/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const msgInternal = "Internal server error"

// respondError maps service errors to HTTP classes. Unknown errors are
// logged and surface as 500.
func respondError(c *gin.Context, err error) {
	var perr *provider.Error
	if errors.As(err, &perr) {
		status := perr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": "OpenRouter API error", "details": perr.Detail})
		return
	}

	switch {
	case errors.Is(err, service.ErrMissingFields),
		errors.Is(err, service.ErrMissingCredentials),
		errors.Is(err, service.ErrMissingGiftCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, billing.ErrInsufficientBalance):
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient balance"})
	case errors.Is(err, service.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrInvalidGiftCode):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailExists),
		errors.Is(err, service.ErrGiftCodeUsed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProviderTransport):
		c.JSON(http.StatusBadGateway, gin.H{"error": service.ErrProviderTransport.Error()})
	case errors.Is(err, service.ErrNoProviderKey),
		errors.Is(err, service.ErrBalanceFetch),
		errors.Is(err, service.ErrBalanceUpdate),
		errors.Is(err, service.ErrPersistExchange):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("handler: unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
