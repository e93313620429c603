package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/papertrade/internal/domain"
)

// mapError writes the response for an error returned by a service. Every
// domain error kind gets its own status and message; only errors outside
// the taxonomy become a generic 500.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, domain.KindInvalidInput, validationErr.Message)
		return
	}

	kind := domain.Kind(err)
	if domain.IsRetryable(err) {
		msg := "Your account is temporarily unavailable, please try again"
		if errors.Is(err, domain.ErrQuoteUnavailable) {
			msg = "Stock prices are temporarily unavailable, please try again"
		}
		writeRetryable(w, kind, msg)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidSymbol):
		WriteError(w, http.StatusBadRequest, kind, "Please enter a valid symbol (e.g. AMZN)")
	case errors.Is(err, domain.ErrAccountNotFound):
		WriteError(w, http.StatusNotFound, kind, "No such account")
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		WriteError(w, http.StatusConflict, kind, "That username is taken, please provide a different one")
	case errors.Is(err, domain.ErrInsufficientFunds):
		WriteError(w, http.StatusUnprocessableEntity, kind, "Transaction declined, you have insufficient funds!")
	case errors.Is(err, domain.ErrNoPosition):
		WriteError(w, http.StatusUnprocessableEntity, kind, "You cannot sell stocks you don't own!")
	case errors.Is(err, domain.ErrInsufficientShares):
		WriteError(w, http.StatusUnprocessableEntity, kind, "You don't own that many shares")
	case errors.Is(err, domain.ErrInconsistentLedger):
		WriteError(w, http.StatusInternalServerError, kind,
			"Your transaction history does not match your holdings; the problem has been logged")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
