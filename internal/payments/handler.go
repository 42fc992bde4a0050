package payments

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Handler is a stand-in payments service: it issues a payment id with
// a bit of simulated latency. The saga only depends on its boundary,
// POST /payments and GET /payments/process/{id}.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

type paymentRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Amount  int64  `json:"amount"`
}

type paymentResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OrderID == "" || req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "order_id and a positive amount are required")
		return
	}

	delay := time.Duration(50+rand.Intn(151)) * time.Millisecond
	time.Sleep(delay)

	paymentID := uuid.New().String()
	h.logger.Info("payment created", "payment_id", paymentID, "order_id", req.OrderID, "amount", req.Amount)

	h.writeJSON(w, http.StatusCreated, paymentResponse{PaymentID: paymentID, Status: "created"})
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	paymentID := r.PathValue("id")
	if paymentID == "" {
		h.writeError(w, http.StatusBadRequest, "missing payment id")
		return
	}

	h.logger.Info("payment processed", "payment_id", paymentID)
	h.writeJSON(w, http.StatusOK, paymentResponse{PaymentID: paymentID, Status: "processed"})
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
