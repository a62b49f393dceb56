package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"bidding-core/internal/domain"
	"bidding-core/pkg/money"
)

type errorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	MinimumAmount string `json:"minimum_amount,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
}

var badRequestErrors = []error{
	domain.ErrInvalidStartTime,
	domain.ErrInvalidEndTime,
	domain.ErrInvalidStartPrice,
	domain.ErrInvalidIncrement,
	domain.ErrInvalidBuyNow,
	domain.ErrTitleRequired,
	money.ErrInvalidAmount,
	money.ErrTooPrecise,
	money.ErrOutOfRange,
}

func statusFor(err error) int {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		if verr.Reason == domain.ReasonAuctionNotActive {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	}

	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyTimeout), errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrDuplicateSubmission), errors.Is(err, domain.ErrAlreadyTerminal):
		return http.StatusConflict
	}

	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (h *AuctionHandler) writeError(c echo.Context, err error) error {
	status := statusFor(err)
	resp := errorResponse{
		Error:     err.Error(),
		Code:      domain.ErrorCode(err),
		Retryable: domain.IsRetryable(err),
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) && verr.MinimumAmount > 0 {
		resp.MinimumAmount = h.currency.Format(verr.MinimumAmount)
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.Path(), "error", err)
		resp.Error = "internal error"
	}
	if resp.Retryable {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, resp)
}
