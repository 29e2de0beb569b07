package handler

import (
	"net/http"
	"strconv"

	"ultichat/internal/middleware"
	"ultichat/internal/model"
	"ultichat/internal/service"

	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	transactionService *service.TransactionService
}

func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

func (h *TransactionHandler) SpendHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		// 非数字按默认值处理，显式 0 按下限处理
		if n, err := strconv.Atoi(raw); err == nil {
			if n == 0 {
				n = 1
			}
			limit = n
		}
	}

	items, err := h.transactionService.SpendHistory(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *TransactionHandler) RedeemGift(c *gin.Context) {
	var req model.RedeemGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.transactionService.RedeemGift(c.Request.Context(), middleware.GetUserID(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
