package azure

import (
	"context"
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// classify translates an ARM response error into the platform taxonomy.
func classify(message string, err error) *provision.BackendError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return provision.NewTransientError(message, err).WithProvider(Kind)
	}

	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return provision.NewTransientError(message, err).WithProvider(Kind)
	}

	switch {
	case respErr.StatusCode == http.StatusUnauthorized || respErr.StatusCode == http.StatusForbidden:
		return provision.NewPermissionError(message, err).WithProvider(Kind)
	case respErr.StatusCode == http.StatusNotFound:
		return provision.NewNotFoundError(message, err).WithProvider(Kind)
	case respErr.StatusCode == http.StatusTooManyRequests:
		return provision.NewThrottledError(message, err).
			WithCode(provision.ErrCodeRateLimited).
			WithProvider(Kind)
	case respErr.StatusCode == http.StatusConflict:
		return provision.NewConflictError(message, err).WithProvider(Kind)
	case respErr.StatusCode >= http.StatusInternalServerError:
		return provision.NewTransientError(message, err).WithProvider(Kind)
	default:
		return provision.NewPermanentError(message, err).
			WithCode(provision.ErrCodeBackendFailed).
			WithProvider(Kind)
	}
}
