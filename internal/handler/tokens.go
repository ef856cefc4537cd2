package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/antriq/api/internal/auth"
	"github.com/antriq/api/internal/database"
	"github.com/antriq/api/internal/enum"
	"github.com/antriq/api/internal/events"
	"github.com/antriq/api/internal/middleware"
	"github.com/antriq/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TokenServicer defines the service methods needed by token handlers.
// Satisfied by *service.TokenService; narrow interface for testability.
type TokenServicer interface {
	Create(ctx context.Context, req service.CreateTokenRequest) (*service.CreateTokenResult, error)
	Board(ctx context.Context, shopID uuid.UUID, date string) (*service.BoardSnapshot, error)
	Detail(ctx context.Context, shopID, tokenID uuid.UUID) (*service.BoardToken, error)
	Availability(ctx context.Context, shopID uuid.UUID) ([]service.ProductAvailability, error)
	CallNext(ctx context.Context, shopID uuid.UUID, date string) (*database.Token, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (database.Token, error)
	CloseDay(ctx context.Context, shopID uuid.UUID, date string) (*service.CloseDayResult, error)
}

// TokenHandler handles the token queue endpoints.
type TokenHandler struct {
	svc    TokenServicer
	notify Notifier
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(svc TokenServicer, notify Notifier) *TokenHandler {
	return &TokenHandler{svc: svc, notify: notify}
}

// RegisterRoutes registers token endpoints on the given Chi router.
// Expected to be mounted inside a shop-scoped subrouter: /shops/{sid}/tokens
func (h *TokenHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/board", h.Board)
	r.Get("/availability", h.Availability)
	r.Post("/call-next", h.CallNext)
	r.Post("/close-day", h.CloseDay)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type createTokenRequest struct {
	OrderType     string                   `json:"order_type"`
	CustomerName  string                   `json:"customer_name"`
	CustomerPhone string                   `json:"customer_phone"`
	Notes         string                   `json:"notes"`
	Items         []createTokenItemRequest `json:"items"`
}

type createTokenItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type tokenResponse struct {
	ID            uuid.UUID           `json:"id"`
	ShopID        uuid.UUID           `json:"shop_id"`
	TokenNo       int32               `json:"token_no"`
	TokenLabel    string              `json:"token_label"`
	OrderType     string              `json:"order_type"`
	Status        string              `json:"status"`
	BusinessDate  string              `json:"business_date"`
	CustomerName  *string             `json:"customer_name"`
	CustomerPhone *string             `json:"customer_phone"`
	Notes         *string             `json:"notes"`
	TotalAmount   string              `json:"total_amount"`
	SettledSaleID *string             `json:"settled_sale_id"`
	CreatedBy     uuid.UUID           `json:"created_by"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	CalledAt      *time.Time          `json:"called_at"`
	InKitchenAt   *time.Time          `json:"in_kitchen_at"`
	ReadyAt       *time.Time          `json:"ready_at"`
	ServedAt      *time.Time          `json:"served_at"`
	SettledAt     *time.Time          `json:"settled_at"`
	CancelledAt   *time.Time          `json:"cancelled_at"`
	Items         []tokenItemResponse `json:"items,omitempty"`
}

type tokenItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int32     `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	LineTotal   string    `json:"line_total"`
}

type boardResponse struct {
	ShopID       uuid.UUID       `json:"shop_id"`
	ShopName     string          `json:"shop_name"`
	BusinessDate string          `json:"business_date"`
	Tokens       []tokenResponse `json:"tokens"`
}

type availabilityResponse struct {
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	TrackStock bool      `json:"track_stock"`
	StockQty   int32     `json:"stock_qty"`
	Reserved   int64     `json:"reserved"`
	Available  *int64    `json:"available"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type closeDayResponse struct {
	PendingCount   int    `json:"pending_count"`
	CancelledCount int    `json:"cancelled_count"`
	PendingTotal   string `json:"pending_total"`
}

// --- Handlers ---

// Create handles POST /shops/{sid}/tokens.
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	shopID, claims, ok := shopScope(w, r)
	if !ok {
		return
	}

	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	items := make([]service.CreateTokenItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.CreateTokenItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
	}

	result, err := h.svc.Create(r.Context(), service.CreateTokenRequest{
		ShopID:        shopID,
		CreatedBy:     claims.UserID,
		OrderType:     req.OrderType,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
		Items:         items,
	})
	if err != nil {
		writeTokenError(w, "create token", err)
		return
	}

	h.notify.Notify(shopID, events.TokenCreated, map[string]any{
		"token_id":    result.Token.ID,
		"token_label": result.Token.TokenLabel,
	})

	resp := toTokenResponse(result.Token)
	resp.Items = toItemResponses(result.Items)
	writeJSON(w, http.StatusCreated, resp)
}

// Board handles GET /shops/{sid}/tokens/board.
func (h *TokenHandler) Board(w http.ResponseWriter, r *http.Request) {
	shopID, _, ok := shopScope(w, r)
	if !ok {
		return
	}

	snapshot, err := h.svc.Board(r.Context(), shopID, r.URL.Query().Get("date"))
	if err != nil {
		writeTokenError(w, "board snapshot", err)
		return
	}

	tokens := make([]tokenResponse, len(snapshot.Tokens))
	for i, bt := range snapshot.Tokens {
		tokens[i] = toTokenResponse(bt.Token)
		tokens[i].Items = toItemResponses(bt.Items)
	}

	writeJSON(w, http.StatusOK, boardResponse{
		ShopID:       snapshot.Shop.ID,
		ShopName:     snapshot.Shop.Name,
		BusinessDate: snapshot.BusinessDate.Format("2006-01-02"),
		Tokens:       tokens,
	})
}

// Get handles GET /shops/{sid}/tokens/{id}.
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	shopID, _, ok := shopScope(w, r)
	if !ok {
		return
	}

	tokenID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid token ID"})
		return
	}

	detail, err := h.svc.Detail(r.Context(), shopID, tokenID)
	if err != nil {
		writeTokenError(w, "get token", err)
		return
	}

	resp := toTokenResponse(detail.Token)
	resp.Items = toItemResponses(detail.Items)
	writeJSON(w, http.StatusOK, resp)
}

// Availability handles GET /shops/{sid}/tokens/availability.
func (h *TokenHandler) Availability(w http.ResponseWriter, r *http.Request) {
	shopID, _, ok := shopScope(w, r)
	if !ok {
		return
	}

	products, err := h.svc.Availability(r.Context(), shopID)
	if err != nil {
		writeTokenError(w, "availability", err)
		return
	}

	resp := make([]availabilityResponse, len(products))
	for i, pa := range products {
		resp[i] = availabilityResponse{
			ProductID:  pa.Product.ID,
			Name:       pa.Product.Name,
			Price:      numericToString(pa.Product.Price),
			TrackStock: pa.Product.TrackStock,
			StockQty:   pa.Product.StockQty,
			Reserved:   pa.Reserved,
			Available:  pa.Available,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CallNext handles POST /shops/{sid}/tokens/call-next.
func (h *TokenHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	shopID, _, ok := shopScope(w, r)
	if !ok {
		return
	}

	token, err := h.svc.CallNext(r.Context(), shopID, r.URL.Query().Get("date"))
	if err != nil {
		writeTokenError(w, "call next", err)
		return
	}
	if token == nil {
		writeJSON(w, http.StatusOK, map[string]any{"token": nil})
		return
	}

	h.notify.Notify(shopID, events.TokenStatus, map[string]any{
		"token_id": token.ID,
		"status":   token.Status,
	})

	writeJSON(w, http.StatusOK, map[string]any{"token": toTokenResponse(*token)})
}

// UpdateStatus handles PATCH /shops/{sid}/tokens/{id}/status.
func (h *TokenHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	shopID, _, ok := shopScope(w, r)
	if !ok {
		return
	}

	tokenID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid token ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	if !isValidTokenStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	token, err := h.svc.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		ShopID:    shopID,
		TokenID:   tokenID,
		Requested: req.Status,
	})
	if err != nil {
		writeTokenError(w, "update status", err)
		return
	}

	h.notify.Notify(shopID, events.TokenStatus, map[string]any{
		"token_id": token.ID,
		"status":   token.Status,
	})

	writeJSON(w, http.StatusOK, toTokenResponse(token))
}

// CloseDay handles POST /shops/{sid}/tokens/close-day.
func (h *TokenHandler) CloseDay(w http.ResponseWriter, r *http.Request) {
	shopID, _, ok := shopScope(w, r)
	if !ok {
		return
	}

	result, err := h.svc.CloseDay(r.Context(), shopID, r.URL.Query().Get("date"))
	if err != nil {
		writeTokenError(w, "close day", err)
		return
	}

	if result.CancelledCount > 0 {
		h.notify.Notify(shopID, events.DayClosed, map[string]any{
			"cancelled_count": result.CancelledCount,
		})
	}

	writeJSON(w, http.StatusOK, closeDayResponse{
		PendingCount:   result.PendingCount,
		CancelledCount: result.CancelledCount,
		PendingTotal:   result.PendingTotal.StringFixed(2),
	})
}

// --- Helpers ---

// shopScope parses the shop id from the URL and requires authenticated claims.
func shopScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, *auth.Claims, bool) {
	shopID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid shop ID"})
		return uuid.Nil, nil, false
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return uuid.Nil, nil, false
	}

	return shopID, claims, true
}

// writeTokenError maps service errors to HTTP responses.
func writeTokenError(w http.ResponseWriter, op string, err error) {
	var capErr *service.CapacityError
	var trErr *service.TransitionError
	switch {
	case errors.Is(err, service.ErrShopNotFound),
		errors.Is(err, service.ErrTokenNotFound),
		errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidProductID),
		errors.Is(err, service.ErrInvalidOrderType),
		errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrTokensDisabled):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &capErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      capErr.Error(),
			"product_id": capErr.ProductID,
			"available":  capErr.Available,
		})
	case errors.As(err, &trErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":          trErr.Error(),
			"current_status": trErr.Current,
		})
	case errors.Is(err, service.ErrTokenSettled),
		errors.Is(err, service.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func isValidTokenStatus(s string) bool {
	switch s {
	case enum.TokenStatusWaiting,
		enum.TokenStatusCalled,
		enum.TokenStatusInProgress,
		enum.TokenStatusReady,
		enum.TokenStatusDone,
		enum.TokenStatusCancelled:
		return true
	}
	return false
}

func toTokenResponse(t database.Token) tokenResponse {
	resp := tokenResponse{
		ID:           t.ID,
		ShopID:       t.ShopID,
		TokenNo:      t.TokenNo,
		TokenLabel:   t.TokenLabel,
		OrderType:    t.OrderType,
		Status:       t.Status,
		BusinessDate: t.BusinessDate.Time.Format("2006-01-02"),
		TotalAmount:  numericToString(t.TotalAmount),
		CreatedBy:    t.CreatedBy,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}

	if t.CustomerName.Valid {
		resp.CustomerName = &t.CustomerName.String
	}
	if t.CustomerPhone.Valid {
		resp.CustomerPhone = &t.CustomerPhone.String
	}
	if t.Notes.Valid {
		resp.Notes = &t.Notes.String
	}
	if t.SettledSaleID.Valid {
		s := uuid.UUID(t.SettledSaleID.Bytes).String()
		resp.SettledSaleID = &s
	}
	if t.CalledAt.Valid {
		resp.CalledAt = &t.CalledAt.Time
	}
	if t.InKitchenAt.Valid {
		resp.InKitchenAt = &t.InKitchenAt.Time
	}
	if t.ReadyAt.Valid {
		resp.ReadyAt = &t.ReadyAt.Time
	}
	if t.ServedAt.Valid {
		resp.ServedAt = &t.ServedAt.Time
	}
	if t.SettledAt.Valid {
		resp.SettledAt = &t.SettledAt.Time
	}
	if t.CancelledAt.Valid {
		resp.CancelledAt = &t.CancelledAt.Time
	}

	return resp
}

func toItemResponses(items []database.TokenItem) []tokenItemResponse {
	resp := make([]tokenItemResponse, len(items))
	for i, it := range items {
		resp[i] = tokenItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   numericToString(it.UnitPrice),
			LineTotal:   numericToString(it.LineTotal),
		}
	}
	return resp
}
