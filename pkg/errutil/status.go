package errutil

import (
	"errors"
	"net/http"
)

// CoreStatus is the transport independent classification of an error.
type CoreStatus string

const (
	StatusUnknown              CoreStatus = "UNKNOWN"
	StatusBadRequest           CoreStatus = "BAD_REQUEST"
	StatusValidationFailed     CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized         CoreStatus = "UNAUTHORIZED"
	StatusForbidden            CoreStatus = "FORBIDDEN"
	StatusNotFound             CoreStatus = "NOT_FOUND"
	StatusConflict             CoreStatus = "CONFLICT"
	StatusUnprocessableEntity  CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusUnsupportedMediaType CoreStatus = "UNSUPPORTED_MEDIA_TYPE"
	StatusTooManyRequests      CoreStatus = "TOO_MANY_REQUESTS"
	StatusClientClosedRequest  CoreStatus = "CLIENT_CLOSED_REQUEST"
	StatusInternal             CoreStatus = "INTERNAL"
	StatusNotImplemented       CoreStatus = "NOT_IMPLEMENTED"
	StatusBadGateway           CoreStatus = "BAD_GATEWAY"
	StatusServiceUnavailable   CoreStatus = "SERVICE_UNAVAILABLE"
	StatusTimeout              CoreStatus = "TIMEOUT"
	StatusGatewayTimeout       CoreStatus = "GATEWAY_TIMEOUT"
)

// Domain statuses. The publish related ones are also stored verbatim as the
// error code of a failed post target.
const (
	StatusInvalidTransition    CoreStatus = "INVALID_TRANSITION"
	StatusInvalidState         CoreStatus = "INVALID_STATE"
	StatusUnsupportedPlatform  CoreStatus = "UNSUPPORTED_PLATFORM"
	StatusSessionExpired       CoreStatus = "SESSION_EXPIRED"
	StatusPlatformMismatch     CoreStatus = "PLATFORM_MISMATCH"
	StatusExchangeFailed       CoreStatus = "EXCHANGE_FAILED"
	StatusSelectionNotFound    CoreStatus = "SELECTION_NOT_FOUND"
	StatusSignatureInvalid     CoreStatus = "SIGNATURE_INVALID"
	StatusCredentialExpired    CoreStatus = "CREDENTIAL_EXPIRED"
	StatusPlatformPublishError CoreStatus = "PLATFORM_PUBLISH_ERROR"
	StatusPermanentFailure     CoreStatus = "PERMANENT_FAILURE"
)

func (s CoreStatus) String() string {
	return string(s)
}

// HTTPStatus converts the CoreStatus to the status code written by the http
// handlers.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed, StatusInvalidState,
		StatusUnsupportedPlatform, StatusSessionExpired, StatusPlatformMismatch,
		StatusExchangeFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden, StatusSignatureInvalid:
		return http.StatusForbidden
	case StatusNotFound, StatusSelectionNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusInvalidTransition:
		return http.StatusConflict
	case StatusUnprocessableEntity, StatusCredentialExpired:
		return http.StatusUnprocessableEntity
	case StatusUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusClientClosedRequest:
		return 499
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway, StatusPlatformPublishError, StatusPermanentFailure:
		return http.StatusBadGateway
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	case StatusTimeout, StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf extracts the CoreStatus carried by err, or StatusUnknown.
func StatusOf(err error) CoreStatus {
	if err == nil {
		return ""
	}
	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return coder.Status()
	}
	return StatusUnknown
}

// HasStatus reports whether err carries the given CoreStatus.
func HasStatus(err error, s CoreStatus) bool {
	return StatusOf(err) == s
}
