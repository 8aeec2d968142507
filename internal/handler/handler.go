package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	service "github.com/honeynil/account-ledger/internal/services"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service service.LedgerService
}

func NewHandler(s service.LedgerService) *Handler {
	return &Handler{service: s}
}

type errorResponse struct {
	Error string `json:"error"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type transactionRequest struct {
	sessionRequest
	Amount json.RawMessage `json:"amount"`
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	r.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	r.HandleFunc("/me/accounts", h.GetBalance).Methods(http.MethodPost)
	r.HandleFunc("/me/accounts/transactions", h.ApplyTransaction).Methods(http.MethodPost)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(pkgerrors.KindOf(err))
	if status == http.StatusInternalServerError {
		observability.Logger(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	h.writeJSON(w, status, errorResponse{Error: pkgerrors.PublicMessage(err)})
}

func statusFor(kind pkgerrors.Kind) int {
	switch kind {
	case pkgerrors.KindConflict, pkgerrors.KindValidation:
		return http.StatusBadRequest
	case pkgerrors.KindAuthentication:
		return http.StatusUnauthorized
	case pkgerrors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, pkgerrors.ErrInvalidBody)
		return false
	}
	return true
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID, err := h.service.CreateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User created successfully",
		"userId":  userID,
	})
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.CreateSession(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"token":  session.Token,
		"userId": session.UserID,
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := h.service.GetBalance(r.Context(), req.UserID, req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]json.Number{"amount": number(amount)})
}

func (h *Handler) ApplyTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	balance, err := h.service.ApplyTransaction(r.Context(), req.UserID, req.Token, amountText(req.Amount))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Transaction successful",
		"newBalance": number(balance),
	})
}

// amountText accepts a JSON number or a JSON string and returns its textual
// value. Other JSON kinds yield "", which the service rejects.
func amountText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		return n.String()
	default:
		return ""
	}
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
