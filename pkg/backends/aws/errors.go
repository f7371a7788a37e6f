package aws

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// classify translates an EC2 API error into the platform taxonomy. EC2
// reports everything through error codes, so classification is
// code-based rather than status-based.
func classify(message string, err error) *provision.BackendError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return provision.NewTransientError(message, err).WithProvider(Kind)
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return provision.NewTransientError(message, err).WithProvider(Kind)
	}

	code := apiErr.ErrorCode()
	switch {
	case code == "UnauthorizedOperation" || code == "AuthFailure" || code == "OptInRequired":
		return provision.NewPermissionError(message, err).WithProvider(Kind)
	case strings.Contains(code, "NotFound"):
		return provision.NewNotFoundError(message, err).WithProvider(Kind)
	case code == "RequestLimitExceeded" || strings.Contains(code, "Throttl"):
		return provision.NewThrottledError(message, err).
			WithCode(provision.ErrCodeRateLimited).
			WithProvider(Kind)
	case code == "IncorrectInstanceState" || code == "IncorrectState" ||
		code == "VolumeInUse" || code == "DependencyViolation":
		return provision.NewConflictError(message, err).WithProvider(Kind)
	case code == "InternalError" || code == "InternalFailure" ||
		code == "ServiceUnavailable" || code == "Unavailable":
		return provision.NewTransientError(message, err).WithProvider(Kind)
	default:
		return provision.NewPermanentError(message, err).
			WithCode(provision.ErrCodeBackendFailed).
			WithProvider(Kind)
	}
}
