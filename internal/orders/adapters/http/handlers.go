package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app/commands"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app/queries"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

const (
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	headerIdempotencyKey = "Idempotency-Key"
	headerSignature      = "X-Razorpay-Signature"

	roleAdmin         = "admin"
	retryAfterSeconds = "5"
	maxWebhookBody    = 1 << 20
)

// Handler exposes HTTP endpoints for checkout, payment confirmation and refunds.
// Callers are identified by the X-User-ID header set by the upstream gateway.
type Handler struct {
	service  *app.Service
	logger   *slog.Logger
	security *SecurityMetrics
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, logger *slog.Logger, security *SecurityMetrics) *Handler {
	return &Handler{service: service, logger: logger, security: security}
}

// Register binds the order handlers to the provided ServeMux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/orders", h.createOrder)
	mux.HandleFunc("GET /v1/orders", h.listOrders)
	mux.HandleFunc("GET /v1/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /v1/orders/{id}/payment", h.retryPayment)
	mux.HandleFunc("POST /v1/payments/verify", h.verifyPayment)
	mux.HandleFunc("POST /v1/payments/failure", h.reportPaymentFailure)
	mux.HandleFunc("POST /v1/payments/webhook", h.webhook)
	mux.HandleFunc("POST /v1/admin/orders/{id}/refunds", h.refundOrder)
}

type orderResponse struct {
	Order    *domain.Order          `json:"order"`
	Checkout *domain.CheckoutHandle `json:"checkout,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if idemKey == "" {
		writeError(w, http.StatusBadRequest, "Idempotency-Key header required")
		return
	}
	// Keys are scoped per buyer.
	scopedKey := userID + ":" + idemKey

	if stored, err := h.service.GetIdempotentResponse(ctx, scopedKey); err != nil {
		h.internalError(w, r, err)
		return
	} else if stored != nil {
		for key, values := range restoreHeaders(stored.StatusCode) {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(stored.StatusCode)
		_, _ = w.Write(stored.Body)
		return
	}

	var payload app.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := h.service.CreateOrder(ctx, userID, payload)

	status := http.StatusCreated
	response := orderResponse{}
	switch {
	case err == nil:
		response.Order = result.Order
		response.Checkout = result.Checkout
	case errors.Is(err, domain.ErrGateway) && result != nil && result.Order != nil:
		// The order exists but checkout could not be opened; the buyer retries
		// through POST /v1/orders/{id}/payment.
		status = http.StatusAccepted
		response.Order = result.Order
		response.Error = "payment gateway unavailable, retry payment for this order"
	default:
		h.writeDomainError(w, r, err)
		return
	}

	body, err := json.Marshal(response)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	stored := ports.StoredResponse{
		StatusCode: status,
		Body:       body,
		OrderID:    response.Order.ID,
	}

	if err := h.service.SaveIdempotentResponse(ctx, scopedKey, stored); err != nil {
		h.internalError(w, r, err)
		return
	}

	for key, values := range restoreHeaders(status) {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	viewer, ok := requireViewer(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: order})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	viewer, ok := requireViewer(w, r)
	if !ok {
		return
	}

	query := queries.ListOrdersQuery{Viewer: viewer}
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := domain.OrderStatus(statusParam)
		query.Status = &status
	}

	var err error
	if query.Page, err = intParam(r, "page"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.PageSize, err = intParam(r, "page_size"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := h.service.ListOrders(r.Context(), query)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) retryPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	result, err := h.service.RetryPayment(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: result.Order, Checkout: result.Checkout})
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload app.VerifyPaymentInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), userID, payload)
	if err != nil {
		if errors.Is(err, domain.ErrSignature) {
			h.security.SignatureRejected(string(commands.SourceClientCallback))
		}
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// reportPaymentFailure answers 200 whatever the outcome. A dismissal can
// never capture, so there is nothing the buyer could act on.
func (h *Handler) reportPaymentFailure(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload app.PaymentFailureInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if _, err := h.service.ReportPaymentFailure(r.Context(), userID, payload); err != nil {
		h.logger.WarnContext(r.Context(), "payment failure report not applied",
			"gateway_order_id", payload.GatewayOrderID,
			"error", err,
		)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// webhook acknowledges unknown orders with 200 so the processor stops
// retrying, and answers 500 on storage errors so it retries.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(headerSignature))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, domain.ErrSignature):
		h.security.SignatureRejected(string(commands.SourceWebhook))
		writeError(w, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	viewer, ok := requireViewer(w, r)
	if !ok {
		return
	}
	if !viewer.IsAdmin {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	var payload app.RefundInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.RefundOrder(r.Context(), r.PathValue("id"), payload)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: order})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      err.Error(),
			"variant_id": stockErr.VariantID,
			"sku":        stockErr.SKU,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSignature):
		writeError(w, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrGateway):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusBadGateway, "payment gateway unavailable")
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required")
		return "", false
	}
	return userID, true
}

func requireViewer(w http.ResponseWriter, r *http.Request) (queries.Viewer, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return queries.Viewer{}, false
	}
	return queries.Viewer{
		UserID:  userID,
		IsAdmin: strings.EqualFold(r.Header.Get(headerUserRole), roleAdmin),
	}, true
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// restoreHeaders rebuilds the headers of a stored checkout response.
func restoreHeaders(status int) http.Header {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if status == http.StatusAccepted {
		header.Set("Retry-After", retryAfterSeconds)
	}
	return header
}
