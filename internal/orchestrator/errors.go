package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/modelgate/modelgate/internal/providers"
	"github.com/modelgate/modelgate/pkg/circuitbreaker"
)

// ErrorKind classifies gateway failures for propagation decisions. The
// attempt loop recovers everything transient locally; the rest surfaces
// to the transport boundary.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindTokenLimit
	KindModelUnknown
	KindTransient
	KindCircuitOpen
	KindAllProvidersFailed
	KindUpstreamTerminal
	KindClientCancel
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTokenLimit:
		return "token_limit_exceeded"
	case KindModelUnknown:
		return "model_unknown"
	case KindTransient:
		return "transient"
	case KindCircuitOpen:
		return "circuit_open"
	case KindAllProvidersFailed:
		return "all_providers_failed"
	case KindUpstreamTerminal:
		return "upstream_terminal"
	case KindClientCancel:
		return "client_cancel"
	default:
		return "internal"
	}
}

// GatewayError is a classified failure.
type GatewayError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewValidationError reports a malformed inbound request.
func NewValidationError(message string) *GatewayError {
	return &GatewayError{Kind: KindValidation, Message: message}
}

// NewTokenLimitError reports a routing-stage rejection.
func NewTokenLimitError(estimated, limit int) *GatewayError {
	return &GatewayError{
		Kind:    KindTokenLimit,
		Message: fmt.Sprintf("estimated %d tokens exceeds the %d token context limit", estimated, limit),
	}
}

// NewAllProvidersFailedError reports an exhausted fallback chain.
func NewAllProvidersFailedError(attempted []string) *GatewayError {
	return &GatewayError{
		Kind:    KindAllProvidersFailed,
		Message: "All providers failed: " + strings.Join(attempted, ", "),
	}
}

// Kind extracts the classification of an error, defaulting to internal.
func Kind(err error) ErrorKind {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a surfaced error to its response status.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case KindValidation, KindTokenLimit, KindModelUnknown:
		return http.StatusBadRequest
	case KindAllProvidersFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Transient status codes an attempt may recover from by retrying or
// switching models.
var transientStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransient reports whether an attempt failure may be recovered by the
// retry layer or the fallback chain. Deadline expiry is transient;
// caller-initiated cancellation is not. Any 4xx other than 429 is a
// configuration problem, not a provider problem, and aborts immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return true
	}

	var statusErr *providers.StatusError
	if errors.As(err, &statusErr) {
		return transientStatuses[statusErr.StatusCode]
	}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind == KindTransient || gwErr.Kind == KindCircuitOpen
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
