package api

import (
	"encoding/json"
	"net/http"

	"github.com/securebank/client-go/internal/apierrors"
)

// parseErrorResponse turns a non-2xx answer into an *apierrors.APIError. The
// raw body is kept: gateway error bodies are encrypted envelopes that only
// the caller's session can open.
func parseErrorResponse(resp *response) error {
	apiErr := &apierrors.APIError{
		StatusCode: resp.status,
		RequestID:  resp.header.Get("X-Request-Id"),
		Body:       resp.body,
	}

	var errResp struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(resp.body, &errResp); err == nil {
		switch {
		case errResp.Error != "":
			apiErr.Message = errResp.Error
		case errResp.Message != "":
			apiErr.Message = errResp.Message
		}
		if errResp.RequestID != "" {
			apiErr.RequestID = errResp.RequestID
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.status)
	}
	return apiErr
}
