package digitalocean

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/digitalocean/godo"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Vendor messages with fixed meaning regardless of status code. The
// access message is what a read-only token gets on write endpoints.
const (
	msgAccessDenied = "You do not have access for the attempted action."
	msgNotFound     = "The resource you were accessing could not be found."
)

// classify translates a godo error into the platform taxonomy.
func classify(message string, err error) *provision.BackendError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return provision.NewTransientError(message, err).WithProvider(Kind)
	}

	var resp *godo.ErrorResponse
	if !errors.As(err, &resp) {
		// Transport-level failure, no vendor verdict yet.
		return provision.NewTransientError(message, err).WithProvider(Kind)
	}

	status := 0
	if resp.Response != nil {
		status = resp.Response.StatusCode
	}

	switch {
	case strings.Contains(resp.Message, msgAccessDenied):
		return provision.NewPermissionError(message, err).WithProvider(Kind)
	case strings.Contains(resp.Message, msgNotFound), status == http.StatusNotFound:
		return provision.NewNotFoundError(message, err).WithProvider(Kind)
	case status == http.StatusUnauthorized:
		return provision.NewPermissionError(message, err).WithProvider(Kind)
	case status == http.StatusTooManyRequests:
		return provision.NewThrottledError(message, err).
			WithCode(provision.ErrCodeRateLimited).
			WithProvider(Kind)
	case status == http.StatusConflict:
		return provision.NewConflictError(message, err).WithProvider(Kind)
	case status >= http.StatusInternalServerError:
		return provision.NewTransientError(message, err).WithProvider(Kind)
	default:
		return provision.NewPermanentError(message, err).
			WithCode(provision.ErrCodeBackendFailed).
			WithProvider(Kind)
	}
}
