package gitlab

import (
	"context"
	"errors"
	"net/http"

	gl "github.com/xanzy/go-gitlab"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// classify translates a GitLab API error into the platform taxonomy.
func classify(message string, err error) *provision.BackendError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return provision.NewTransientError(message, err).WithProvider(Kind)
	}

	var respErr *gl.ErrorResponse
	if !errors.As(err, &respErr) {
		return provision.NewTransientError(message, err).WithProvider(Kind)
	}

	status := 0
	if respErr.Response != nil {
		status = respErr.Response.StatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provision.NewPermissionError(message, err).WithProvider(Kind)
	case status == http.StatusNotFound:
		return provision.NewNotFoundError(message, err).WithProvider(Kind)
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
