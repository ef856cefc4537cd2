package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/antriq/api/internal/events"
	"github.com/antriq/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Settler defines the service methods needed by settlement handlers.
// Satisfied by *service.SettlementService.
type Settler interface {
	Settle(ctx context.Context, req service.SettleRequest) (*service.SettleResult, error)
}

// SettlementHandler handles token settlement endpoints.
type SettlementHandler struct {
	svc    Settler
	notify Notifier
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(svc Settler, notify Notifier) *SettlementHandler {
	return &SettlementHandler{svc: svc, notify: notify}
}

// RegisterRoutes registers settlement endpoints on the given Chi router.
// Expected to be mounted inside a shop-scoped subrouter: /shops/{sid}/tokens
func (h *SettlementHandler) RegisterRoutes(r chi.Router) {
	r.Post("/{id}/settle", h.Settle)
}

type settleRequest struct {
	Note string `json:"note"`
}

type settleResponse struct {
	SaleID         uuid.UUID     `json:"sale_id"`
	AlreadySettled bool          `json:"already_settled"`
	Token          tokenResponse `json:"token"`
}

// Settle handles POST /shops/{sid}/tokens/{id}/settle.
// Safe to retry: a duplicate call returns the original sale with a 200.
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	shopID, claims, ok := shopScope(w, r)
	if !ok {
		return
	}

	tokenID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid token ID"})
		return
	}

	var req settleRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	result, err := h.svc.Settle(r.Context(), service.SettleRequest{
		ShopID:    shopID,
		TokenID:   tokenID,
		Note:      req.Note,
		SettledBy: claims.UserID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenNotFound), errors.Is(err, service.ErrShopNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrSettleCancelled), errors.Is(err, service.ErrSettleNoItems):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: settle token: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	if !result.AlreadySettled {
		h.notify.Notify(shopID, events.TokenSettled, map[string]any{
			"token_id": result.Token.ID,
			"sale_id":  result.SaleID,
		})
	}

	writeJSON(w, http.StatusOK, settleResponse{
		SaleID:         result.SaleID,
		AlreadySettled: result.AlreadySettled,
		Token:          toTokenResponse(result.Token),
	})
}
