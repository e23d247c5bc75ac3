package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/modelgate/modelgate/internal/middleware"
	"github.com/modelgate/modelgate/internal/orchestrator"
)

// ProblemDetails is an RFC 7807 error body, extended with the request's
// correlation id.
type ProblemDetails struct {
	Type          string `json:"type,omitempty"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

var kindTitles = map[orchestrator.ErrorKind]string{
	orchestrator.KindValidation:         "Invalid request",
	orchestrator.KindTokenLimit:         "Request too large",
	orchestrator.KindModelUnknown:       "Unknown model",
	orchestrator.KindAllProvidersFailed: "Service unavailable",
}

// WriteProblem maps a surfaced orchestration error onto a problem
// response. Internal details never leak; the detail string is the
// classified gateway message only.
func WriteProblem(w http.ResponseWriter, r *http.Request, err error) {
	status := orchestrator.HTTPStatus(err)

	title, ok := kindTitles[orchestrator.Kind(err)]
	if !ok {
		title = "Internal server error"
	}

	detail := ""
	var gwErr *orchestrator.GatewayError
	if errors.As(err, &gwErr) {
		detail = gwErr.Message
	}

	problem := ProblemDetails{
		Type:          "about:blank",
		Title:         title,
		Status:        status,
		Detail:        detail,
		CorrelationID: middleware.CorrelationID(r.Context()),
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}
