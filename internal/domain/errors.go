// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// Kind – машинно-проверяемый тип ошибки, который видит клиент.
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindAuthorization       Kind = "authorization"
	KindNotCustodial        Kind = "not_custodial"
	KindNoFeesAvailable     Kind = "no_fees_available"
	KindInsufficientBalance Kind = "insufficient_custody_balance"
	KindAlreadyTokenized    Kind = "already_tokenized"
	KindPaymentRequired     Kind = "payment_required"
	KindPaymentNotVerified  Kind = "payment_not_verified"
	KindUnconfirmed         Kind = "unconfirmed_transaction"
	KindUpstream            Kind = "upstream_service"
	KindNotFound            Kind = "not_found"
	KindInvalidRequest      Kind = "invalid_request"
	KindClaimInProgress     Kind = "claim_in_progress"
	KindSettlementFailed    Kind = "settlement_failed"
	KindInternal            Kind = "internal"
)

// Error представляет доменную ошибку с коротким сообщением для пользователя.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap возвращает исходную ошибку
func (e *Error) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать ошибки по Kind через errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// NewError создает доменную ошибку
func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf возвращает Kind ошибки или KindInternal для неизвестных ошибок.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind сообщает, относится ли ошибка к указанному Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Цели для errors.Is: совпадают с любой ошибкой того же Kind.
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrAuthorization       = &Error{Kind: KindAuthorization}
	ErrNotCustodial        = &Error{Kind: KindNotCustodial}
	ErrNoFeesAvailable     = &Error{Kind: KindNoFeesAvailable}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrAlreadyTokenized    = &Error{Kind: KindAlreadyTokenized}
	ErrPaymentRequired     = &Error{Kind: KindPaymentRequired}
	ErrPaymentNotVerified  = &Error{Kind: KindPaymentNotVerified}
	ErrUnconfirmed         = &Error{Kind: KindUnconfirmed}
	ErrUpstream            = &Error{Kind: KindUpstream}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest}
	ErrClaimInProgress     = &Error{Kind: KindClaimInProgress}
	ErrSettlementFailed    = &Error{Kind: KindSettlementFailed}
)

// ConfigurationError – фатальная ошибка конфигурации при старте.
func ConfigurationError(msg string, err error) error {
	return NewError(KindConfiguration, msg, err)
}

func AuthorizationError(msg string, err error) error {
	return NewError(KindAuthorization, msg, err)
}

func NotCustodialError(mint string) error {
	return NewError(KindNotCustodial, fmt.Sprintf("token %s was launched by its owner and has no custodial fees", mint), nil)
}

func NoFeesAvailableError(msg string) error {
	return NewError(KindNoFeesAvailable, msg, nil)
}

func InsufficientCustodyBalanceError(msg string) error {
	return NewError(KindInsufficientBalance, msg, nil)
}

func AlreadyTokenizedError(repo string) error {
	return NewError(KindAlreadyTokenized, fmt.Sprintf("repository %s is already tokenized", repo), nil)
}

func PaymentRequiredError(msg string) error {
	return NewError(KindPaymentRequired, msg, nil)
}

func PaymentNotVerifiedError(msg string, err error) error {
	return NewError(KindPaymentNotVerified, msg, err)
}

func UnconfirmedTransactionError(sig string, err error) error {
	return NewError(KindUnconfirmed, fmt.Sprintf("transaction %s is not confirmed yet", sig), err)
}

func UpstreamServiceError(service string, err error) error {
	return NewError(KindUpstream, service+" is unavailable", err)
}

func NotFoundError(msg string) error {
	return NewError(KindNotFound, msg, nil)
}

func InvalidRequestError(msg string, err error) error {
	return NewError(KindInvalidRequest, msg, err)
}

func ClaimInProgressError(mint string) error {
	return NewError(KindClaimInProgress, fmt.Sprintf("a claim for token %s is already awaiting signature", mint), nil)
}

func SettlementFailedError(msg string, err error) error {
	return NewError(KindSettlementFailed, msg, err)
}

// NextAction возвращает подсказку пользователю о следующем шаге.
func NextAction(kind Kind) string {
	switch kind {
	case KindAuthorization:
		return "sign in with an account that owns or administers the repository"
	case KindNotCustodial:
		return "fees for owner-launched tokens go directly to the creator wallet"
	case KindNoFeesAvailable:
		return "no fees to claim yet, try again after more trading volume"
	case KindInsufficientBalance:
		return "custody wallet is being topped up, try again later"
	case KindAlreadyTokenized:
		return "open the existing token page for this repository"
	case KindPaymentRequired:
		return "pay the deployment cost to the custody address first"
	case KindPaymentNotVerified:
		return "check the payment transaction and resubmit its signature"
	case KindUnconfirmed:
		return "retry confirmation in a few seconds with the same signature"
	case KindClaimInProgress:
		return "finish or wait out the pending claim before requesting a new one"
	case KindUpstream:
		return "an external service is unavailable, try again shortly"
	case KindSettlementFailed:
		return "your transfer is recorded for manual reconciliation, no action needed"
	default:
		return ""
	}
}
