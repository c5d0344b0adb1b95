package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/agrilogistic/search/pkg/errors"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 1 << 20

// downstreamErrorResponse mirrors the httputil.ErrorResponse envelope.
type downstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// translates it into an AppError. Structured error envelopes keep their
// message; anything else is reported with the raw body.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apperrors.Upstream(serviceName, resp.StatusCode, fmt.Sprintf("unreadable body: %v", err))
	}

	message := strings.TrimSpace(string(body))
	var downstream downstreamErrorResponse
	if json.Unmarshal(body, &downstream) == nil && downstream.Error != nil {
		message = downstream.Error.Message
	}
	return mapDownstreamError(resp.StatusCode, message, serviceName)
}

func mapDownstreamError(status int, message, serviceName string) error {
	switch status {
	case http.StatusNotFound:
		return apperrors.NotFound(serviceName+" resource", message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.InvalidQuery(fmt.Sprintf("%s: %s", serviceName, message))
	default:
		return apperrors.Upstream(serviceName, status, message)
	}
}
