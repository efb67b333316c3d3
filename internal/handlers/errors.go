package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"ticketlottery/internal/models"
	"ticketlottery/internal/ratelimit"
	"ticketlottery/internal/services"
)

type errorResponse struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Winners []models.Winner `json:"winners,omitempty"`
}

var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrLotteryNotFound, http.StatusNotFound, "lottery_not_found"},
	{models.ErrCampaignNotFound, http.StatusNotFound, "campaign_not_found"},
	{models.ErrCampaignNotLotteryEligible, http.StatusUnprocessableEntity, "campaign_not_lottery_eligible"},
	{models.ErrInvalidDrawDate, http.StatusUnprocessableEntity, "invalid_draw_date"},
	{models.ErrInvalidLottery, http.StatusUnprocessableEntity, "invalid_lottery"},
	{models.ErrInvalidPurchase, http.StatusUnprocessableEntity, "invalid_purchase"},
	{models.ErrLotterySoldOut, http.StatusConflict, "lottery_sold_out"},
	{models.ErrCurrencyMismatch, http.StatusConflict, "currency_mismatch"},
	{models.ErrLotteryNotDrawable, http.StatusConflict, "lottery_not_drawable"},
	{models.ErrDuplicateTransaction, http.StatusConflict, "duplicate_transaction"},
	{models.ErrRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_exceeded"},
	{models.ErrTicketNumberExhausted, http.StatusServiceUnavailable, "ticket_number_exhausted"},
}

// writeError maps err to a status code and a JSON body.
func writeError(c *gin.Context, err error) {
	var perr *services.DrawPersistenceError
	if errors.As(err, &perr) {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:   "draw_not_persisted",
			Message: err.Error(),
			Winners: perr.Winners,
		})
		return
	}

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(exceeded.RetryAfter.Seconds()))))
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			c.JSON(k.status, errorResponse{Error: k.code, Message: err.Error()})
			return
		}
	}

	logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
}
