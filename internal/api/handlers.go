// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/custody"
	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

const maxBodySize = 64 << 10

// CustodyService – операции кастоди, доступные по HTTP.
type CustodyService interface {
	CustodyInfo() custody.CustodyInfo
	FeeInfo(ctx context.Context, mint string) (*custody.TokenFees, error)
	Deploy(ctx context.Context, caller custody.Caller, req custody.DeployRequest) (*custody.DeployResult, error)
	RegisterDirect(ctx context.Context, caller custody.Caller, mint string, req custody.DirectRequest) (*custody.DeployResult, error)
	QuoteClaim(ctx context.Context, caller custody.Caller, mint, claimantWallet string) (*custody.ClaimQuote, error)
	ConfirmClaim(ctx context.Context, caller custody.Caller, mint, signature string) (*custody.ClaimResult, error)
}

// Handler держит сервис, с которым работают обработчики.
type Handler struct {
	service CustodyService
	logger  *zap.Logger
}

func NewHandler(service CustodyService, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger.Named("api")}
}

type claimRequest struct {
	ClaimantWallet string `json:"claimantWallet"`
}

type confirmRequest struct {
	Signature string `json:"signature"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCustodyInfo(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.CustodyInfo())
}

func (h *Handler) handleFeeInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.FeeInfo(r.Context(), chi.URLParam(r, "mint"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w, "unauthorized")
		return
	}
	var req custody.DeployRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.service.Deploy(r.Context(), caller, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.TokenMint != "" {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, res)
}

func (h *Handler) handleRegisterDirect(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w, "unauthorized")
		return
	}
	var req custody.DirectRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.service.RegisterDirect(r.Context(), caller, chi.URLParam(r, "mint"), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleQuoteClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w, "unauthorized")
		return
	}
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.ClaimantWallet == "" {
		h.respondError(w, r, domain.InvalidRequestError("claimantWallet is required", nil))
		return
	}

	quote, err := h.service.QuoteClaim(r.Context(), caller, chi.URLParam(r, "mint"), req.ClaimantWallet)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, quote)
}

func (h *Handler) handleConfirmClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w, "unauthorized")
		return
	}
	var req confirmRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Signature == "" {
		h.respondError(w, r, domain.InvalidRequestError("signature is required", nil))
		return
	}

	result, err := h.service.ConfirmClaim(r.Context(), caller, chi.URLParam(r, "mint"), req.Signature)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return domain.InvalidRequestError("invalid request body", err)
	}
	return nil
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
