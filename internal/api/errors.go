// internal/api/errors.go
package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/domain"
)

const kindUnauthenticated = "unauthenticated"

// errorResponse – тело любой ошибки: сообщение, машинный kind и подсказка.
type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Action string `json:"action,omitempty"`
}

// StatusFor сопоставляет kind доменной ошибки с HTTP-статусом. Клиент
// различает ошибки с одним статусом по полю kind.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidRequest, domain.KindNotCustodial, domain.KindNoFeesAvailable,
		domain.KindPaymentNotVerified, domain.KindUnconfirmed:
		return http.StatusBadRequest
	case domain.KindPaymentRequired:
		return http.StatusPaymentRequired
	case domain.KindAlreadyTokenized, domain.KindClaimInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	// Внутренние детали наружу не отдаются, только сообщение доменной ошибки.
	message := "internal error"
	var de *domain.Error
	if errors.As(err, &de) && kind != domain.KindInternal && kind != domain.KindConfiguration {
		message = de.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	if kind == domain.KindUnconfirmed {
		w.Header().Set("Retry-After", "5")
	}
	respondWithJSON(w, status, errorResponse{
		Error:  message,
		Kind:   string(kind),
		Action: domain.NextAction(kind),
	})
}

func respondUnauthenticated(w http.ResponseWriter, message string) {
	respondWithJSON(w, http.StatusUnauthorized, errorResponse{
		Error:  message,
		Kind:   kindUnauthenticated,
		Action: "sign in again",
	})
}
