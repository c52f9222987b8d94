package transaction

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	errors "github.com/frahmantamala/ngo-accountability/internal"
	"github.com/frahmantamala/ngo-accountability/internal/transport"
	"github.com/frahmantamala/ngo-accountability/pkg/logger"
	"github.com/go-chi/chi"
)

const maxDocumentUploadBytes = 10 << 20

type ServiceAPI interface {
	CreateFromNotification(ctx context.Context, dto *WithdrawalNotificationDTO) (*WithdrawalNotificationResponse, error)
	AttachDocument(ctx context.Context, transactionID string, dto *AttachDocumentDTO) (*AttachDocumentResponse, error)
	AttachDocumentFile(ctx context.Context, transactionID, filename, contentType string, data []byte, notes string) (*AttachDocumentResponse, error)
	GetByTransactionID(transactionID string) (*Transaction, error)
	ListPendingByNgo(ngoID int64) ([]*Transaction, error)
	ListPendingByAccountNumber(accountNumber string) ([]*Transaction, error)
	LookupDocuments(dto *DocumentLookupDTO) ([]DocumentMetadata, error)
	RetrySettlement(ctx context.Context, transactionID string) (*Transaction, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// NotifyWithdrawal handles the inbound bank event that opens a verification
// window.
func (h *Handler) NotifyWithdrawal(w http.ResponseWriter, r *http.Request) {
	var dto WithdrawalNotificationDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("NotifyWithdrawal: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.Service.CreateFromNotification(r.Context(), &dto)
	if err != nil {
		h.Logger.Error("NotifyWithdrawal: service error", "error", err, "account_number", dto.AccountNumber)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("NotifyWithdrawal: verification window opened",
		"transaction_id", resp.TransactionID,
		"deadline", resp.Deadline)

	h.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) AttachDocument(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	var dto AttachDocumentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("AttachDocument: invalid request body", "error", err, "transaction_id", transactionID)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.Service.AttachDocument(r.Context(), transactionID, &dto)
	if err != nil {
		h.Logger.Error("AttachDocument: service error", "error", err, "transaction_id", transactionID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// AttachDocumentFile accepts a raw multipart file and delegates storage to
// the object-storage collaborator before running the same gate.
func (h *Handler) AttachDocumentFile(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	if err := r.ParseMultipartForm(maxDocumentUploadBytes); err != nil {
		h.Logger.Error("AttachDocumentFile: invalid multipart body", "error", err, "transaction_id", transactionID)
		h.WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		h.Logger.Error("AttachDocumentFile: missing document file", "error", err, "transaction_id", transactionID)
		h.WriteError(w, http.StatusBadRequest, "document file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxDocumentUploadBytes))
	if err != nil {
		h.Logger.Error("AttachDocumentFile: failed to read file", "error", err, "transaction_id", transactionID)
		h.WriteError(w, http.StatusBadRequest, "failed to read document file")
		return
	}

	notes := r.FormValue("ngo_notes")
	contentType := header.Header.Get("Content-Type")

	resp, err := h.Service.AttachDocumentFile(r.Context(), transactionID, header.Filename, contentType, data, notes)
	if err != nil {
		h.Logger.Error("AttachDocumentFile: service error", "error", err, "transaction_id", transactionID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	tx, err := h.Service.GetByTransactionID(transactionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, tx)
}

// ListPending serves the NGO dashboard: by NGO identifier or bank account
// number.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	if accountNumber := r.URL.Query().Get("account_number"); accountNumber != "" {
		txs, err := h.Service.ListPendingByAccountNumber(accountNumber)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}
		h.WriteJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
		return
	}

	ngoIDStr := r.URL.Query().Get("ngo_id")
	if ngoIDStr == "" {
		h.HandleError(w, errors.NewValidationError("ngo_id or account_number is required", errors.ErrCodeValidationFailed))
		return
	}

	ngoID, err := strconv.ParseInt(ngoIDStr, 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid ngo_id", errors.ErrCodeValidationFailed))
		return
	}

	txs, err := h.Service.ListPendingByNgo(ngoID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// LookupDocuments enriches ledger-sourced listings with off-chain proof
// links for a batch of receiver keys.
func (h *Handler) LookupDocuments(w http.ResponseWriter, r *http.Request) {
	var dto DocumentLookupDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	metadata, err := h.Service.LookupDocuments(&dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"documents": metadata})
}

func (h *Handler) RetrySettlement(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	tx, err := h.Service.RetrySettlement(r.Context(), transactionID)
	if err != nil {
		h.Logger.Error("RetrySettlement: service error", "error", err, "transaction_id", transactionID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RetrySettlement: settlement re-driven",
		"transaction_id", transactionID,
		"status", tx.Status)

	h.WriteJSON(w, http.StatusOK, tx)
}
