package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Handler is the HTTP front door for the orders write model. It only
// translates requests to commands; saga progression happens on the
// bus, never in here.
type Handler struct {
	commands *Commands
	repo     *OrderRepository
	logger   *slog.Logger
}

func NewHandler(commands *Commands, repo *OrderRepository, logger *slog.Logger) *Handler {
	return &Handler{
		commands: commands,
		repo:     repo,
		logger:   logger,
	}
}

type createOrderRequest struct {
	UserID string        `json:"user_id"`
	Items  []ItemRequest `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.commands.Create(r.Context(), req.UserID, req.Items)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyOrder):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrUnknownProduct):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.Error("failed to create order", "error", err)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updatePaymentRequest struct {
	IsPaid    *bool   `json:"is_paid"`
	PaymentID *string `json:"payment_id"`
}

func (h *Handler) HandleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.commands.SetPaymentDetails(r.Context(), id, req.IsPaid, req.PaymentID) {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil || order == nil {
		h.logger.Error("failed to reload order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	deleted, err := h.commands.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if deleted == 0 {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
