package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const (
	kindUnauthenticated = "unauthenticated"
	kindForbidden       = "forbidden"
	kindRateLimited     = "rate_limited"
	kindBadRequest      = "bad_request"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindNotFound:            http.StatusNotFound,
	apperr.KindInvalidReference:    http.StatusUnprocessableEntity,
	apperr.KindEmptyCart:           http.StatusUnprocessableEntity,
	apperr.KindInsufficientStock:   http.StatusConflict,
	apperr.KindInsufficientBalance: http.StatusPaymentRequired,
	apperr.KindInvalidState:        http.StatusConflict,
	apperr.KindTimeout:             http.StatusGatewayTimeout,
	apperr.KindStoreUnavailable:    http.StatusServiceUnavailable,
	apperr.KindInvalid:             http.StatusBadRequest,
	apperr.KindConflict:            http.StatusConflict,
	apperr.KindInternal:            http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

// writeDomainError renders err with the status of its kind. Internal
// failures are logged and their text is not exposed.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	body := errorBody{Error: err.Error(), Kind: string(kind), Details: detailsOf(err)}
	if status == http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("http_internal_error",
			observability.F("route", routeFromContext(r.Context())),
			observability.F("error", err.Error()),
		)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func detailsOf(err error) map[string]any {
	var stock *apperr.StockShortage
	if errors.As(err, &stock) {
		return map[string]any{
			"product_id": stock.ProductID,
			"requested":  stock.Requested,
			"available":  stock.Available,
		}
	}
	var balance *apperr.BalanceShortfall
	if errors.As(err, &balance) {
		return map[string]any{
			"required":  balance.Required.StringFixed(2),
			"available": balance.Available.StringFixed(2),
			"shortfall": balance.Shortfall().StringFixed(2),
		}
	}
	return nil
}
