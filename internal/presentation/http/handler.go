package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appaccount "github.com/Zhima-Mochi/minishop-checkout/internal/application/account"
	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/reference"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxBodyBytes         = 1 << 20
)

// UseCases are the operations served over HTTP.
type UseCases struct {
	AddToCart           application.UseCase[appcart.LineInput, *appcart.LineResult]
	UpdateCartItem      application.UseCase[appcart.LineInput, *appcart.LineResult]
	ListCart            application.UseCase[appcart.ListItemsInput, *appcart.CartView]
	CreateOrder         application.UseCase[checkout.CreateOrderInput, *checkout.CreateOrderResult]
	PayOrder            application.UseCase[payment.PayOrderInput, *payment.PayOrderResult]
	ListOrders          application.UseCase[apporder.ListOrdersInput, []order.Summary]
	GetOrderDetail      application.UseCase[apporder.GetOrderDetailInput, *order.Detail]
	CancelOrder         application.UseCase[apporder.CancelOrderInput, *apporder.TransitionResult]
	ListAllOrders       application.UseCase[struct{}, []order.Summary]
	AdvanceStatus       application.UseCase[apporder.AdvanceStatusInput, *apporder.TransitionResult]
	Deposit             application.UseCase[appaccount.DepositInput, *appaccount.DepositResult]
	GetAccount          application.UseCase[appaccount.GetAccountInput, *account.Account]
	ListTransactions    application.UseCase[appaccount.ListTransactionsInput, []account.Transaction]
	ListShippingOptions application.UseCase[struct{}, []reference.ShippingOption]
	ListPaymentMethods  application.UseCase[struct{}, []reference.PaymentMethod]
}

// HealthChecker reports whether the store can serve requests.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RateLimiter throttles mutating requests per caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Handler struct {
	uc           UseCases
	health       HealthChecker
	limiter      RateLimiter
	metrics      http.Handler
	log          observability.Logger
	httpRequests observability.Counter   // http_requests_total{method,route,status}
	httpDuration observability.Histogram // http_request_duration_seconds{method,route,status}
}

type Option func(*Handler)

func WithHealthChecker(hc HealthChecker) Option {
	return func(h *Handler) { h.health = hc }
}

// WithRateLimiter throttles POST and PUT routes.
func WithRateLimiter(l RateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithMetricsHandler mounts the Prometheus scrape endpoint on /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(uc UseCases, tel observability.Observability, opts ...Option) *Handler {
	tel = observability.OrNop(tel)
	h := &Handler{
		uc:           uc,
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		httpRequests: tel.Metrics().Counter(observability.MHTTPRequests),
		httpDuration: tel.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → request logger → access log → metrics → (rate limit) → handler
	h.route(mux, "GET /cart", h.handleListCart)
	h.route(mux, "POST /cart/items", h.handleAddToCart)
	h.route(mux, "PUT /cart/items", h.handleUpdateCartItem)
	h.route(mux, "POST /orders", h.handleCreateOrder)
	h.route(mux, "GET /orders", h.handleListOrders)
	h.route(mux, "GET /orders/{id}", h.handleGetOrder)
	h.route(mux, "POST /orders/{id}/pay", h.handlePayOrder)
	h.route(mux, "POST /orders/{id}/cancel", h.handleCancelOrder)
	h.route(mux, "GET /admin/orders", h.admin(h.handleListAllOrders))
	h.route(mux, "PUT /admin/orders/{id}/status", h.admin(h.handleAdvanceStatus))
	h.route(mux, "POST /admin/users/{id}/deposit", h.admin(h.handleDeposit))
	h.route(mux, "GET /me", h.handleGetAccount)
	h.route(mux, "GET /me/transactions", h.handleListTransactions)
	h.route(mux, "GET /shipping/options", h.handleListShippingOptions)
	h.route(mux, "GET /payment/methods", h.handleListPaymentMethods)
	h.route(mux, "GET /health", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	return mux
}

func (h *Handler) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	var next http.Handler = handler
	if h.limiter != nil && (strings.HasPrefix(pattern, http.MethodPost+" ") || strings.HasPrefix(pattern, http.MethodPut+" ")) {
		next = h.withRateLimit(next)
	}
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerUserID) },
		)(
			h.withAccessLog(
				h.withHTTPMetrics(next),
			),
		),
	)
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), pattern)))
	}))
}

// identity is supplied by the upstream authentication layer.
type identity struct {
	UserID string
	Role   account.Role
}

func identityOf(r *http.Request) identity {
	return identity{
		UserID: strings.TrimSpace(r.Header.Get(headerUserID)),
		Role:   account.Role(strings.TrimSpace(r.Header.Get(headerUserRole))),
	}
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (identity, bool) {
	id := identityOf(r)
	if id.UserID == "" {
		writeError(w, http.StatusUnauthorized, kindUnauthenticated, fmt.Errorf("missing %s header", headerUserID))
		return identity{}, false
	}
	return id, true
}

func (h *Handler) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.requireUser(w, r)
		if !ok {
			return
		}
		if id.Role != account.RoleAdmin {
			writeError(w, http.StatusForbidden, kindForbidden, errors.New("admin role required"))
			return
		}
		next(w, r)
	}
}

// withRateLimit keys buckets by caller, falling back to the client address.
// A limiter failure lets the request through.
func (h *Handler) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := identityOf(r).UserID
		if key == "" {
			key = clientIP(r)
		}
		allowed, err := h.limiter.Allow(r.Context(), key)
		if err != nil {
			logctx.FromOr(r.Context(), h.log).Warn("rate_limiter_unavailable",
				observability.F("error", err.Error()),
			)
			allowed = true
		}
		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, kindRateLimited, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}

func (h *Handler) handleListCart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	view, err := h.uc.ListCart.Execute(r.Context(), appcart.ListItemsInput{UserID: id.UserID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(view))
}

func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	h.handleCartLine(w, r, h.uc.AddToCart)
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	h.handleCartLine(w, r, h.uc.UpdateCartItem)
}

func (h *Handler) handleCartLine(w http.ResponseWriter, r *http.Request, uc application.UseCase[appcart.LineInput, *appcart.LineResult]) {
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req cartLineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}
	res, err := uc.Execute(r.Context(), appcart.LineInput{UserID: id.UserID, ProductID: req.ProductID, Quantity: req.Quantity})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartLineResponse{ProductID: res.ProductID, Quantity: res.Quantity, Removed: res.Removed})
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}
	res, err := h.uc.CreateOrder.Execute(r.Context(), checkout.CreateOrderInput{
		UserID:            id.UserID,
		ShippingOptionID:  req.ShippingOptionID,
		PaymentMethodID:   req.PaymentMethodID,
		ShippingAddressID: req.ShippingAddressID,
		IdempotencyKey:    strings.TrimSpace(r.Header.Get(headerIdempotencyKey)),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		w.Header().Set(headerReplayed, "true")
	}
	writeJSON(w, status, createOrderResponse{
		OrderID:     res.OrderID,
		Status:      res.Status,
		TotalAmount: res.TotalAmount,
		Items:       toOrderItems(res.Items),
		Replayed:    res.Replayed,
	})
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.uc.ListOrders.Execute(r.Context(), apporder.ListOrdersInput{UserID: id.UserID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaries(list))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	d, err := h.uc.GetOrderDetail.Execute(r.Context(), apporder.GetOrderDetailInput{OrderID: r.PathValue("id"), UserID: id.UserID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetail(d))
}

func (h *Handler) handlePayOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	res, err := h.uc.PayOrder.Execute(r.Context(), payment.PayOrderInput{OrderID: r.PathValue("id"), UserID: id.UserID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payOrderResponse{
		OrderID:       res.OrderID,
		Status:        res.Status,
		AmountPaid:    res.AmountPaid,
		TransactionID: res.TransactionID,
	})
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	res, err := h.uc.CancelOrder.Execute(r.Context(), apporder.CancelOrderInput{OrderID: r.PathValue("id"), UserID: id.UserID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{OrderID: res.OrderID, From: res.From, Status: res.Status})
}

func (h *Handler) handleListAllOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.uc.ListAllOrders.Execute(r.Context(), struct{}{})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaries(list))
}

func (h *Handler) handleAdvanceStatus(w http.ResponseWriter, r *http.Request) {
	var req advanceStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}
	res, err := h.uc.AdvanceStatus.Execute(r.Context(), apporder.AdvanceStatusInput{
		OrderID: r.PathValue("id"),
		Status:  req.Status,
		ActorID: identityOf(r).UserID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{OrderID: res.OrderID, From: res.From, Status: res.Status})
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}
	res, err := h.uc.Deposit.Execute(r.Context(), appaccount.DepositInput{
		UserID:  r.PathValue("id"),
		Amount:  req.Amount,
		ActorID: identityOf(r).UserID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, depositResponse{UserID: res.UserID, Balance: res.Balance, TransactionID: res.TransactionID})
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	a, err := h.uc.GetAccount.Execute(r.Context(), appaccount.GetAccountInput{UserID: id.UserID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccount(a))
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.uc.ListTransactions.Execute(r.Context(), appaccount.ListTransactionsInput{UserID: id.UserID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactions(list))
}

func (h *Handler) handleListShippingOptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.uc.ListShippingOptions.Execute(r.Context(), struct{}{})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShippingOptions(list))
}

func (h *Handler) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	list, err := h.uc.ListPaymentMethods.Execute(r.Context(), struct{}{})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentMethods(list))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}
