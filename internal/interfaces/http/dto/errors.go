package dto

import (
	"errors"
	"net/http"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/printing"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/remote"
)

// Error codes returned by the agent API
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal = "ERR_INTERNAL"

	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"

	ErrCodeUnauthorized   = "ERR_UNAUTHORIZED"
	ErrCodeForbidden      = "ERR_FORBIDDEN"
	ErrCodeTokenInvalid   = "ERR_TOKEN_INVALID"
	ErrCodeTenantMismatch = "ERR_TENANT_MISMATCH"

	ErrCodeInvalidCredentials = "ERR_INVALID_CREDENTIALS"
	ErrCodeAccountLocked      = "ERR_ACCOUNT_LOCKED"
	ErrCodeAccountDisabled    = "ERR_ACCOUNT_DEACTIVATED"

	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeInvalidState  = "ERR_INVALID_STATE"

	// ErrCodeQuotaExceeded means the local snapshot no longer fits its slot
	ErrCodeQuotaExceeded = "ERR_QUOTA_EXCEEDED"
	ErrCodeSyncFailed    = "ERR_SYNC_FAILED"
	ErrCodeRemote        = "ERR_REMOTE"
	ErrCodeUnavailable   = "ERR_REMOTE_UNAVAILABLE"

	ErrCodeRenderFailed  = "ERR_RENDER_FAILED"
	ErrCodeRenderTimeout = "ERR_RENDER_TIMEOUT"

	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeUnauthorized:   http.StatusUnauthorized,
	ErrCodeTokenInvalid:   http.StatusUnauthorized,
	ErrCodeForbidden:      http.StatusForbidden,
	ErrCodeTenantMismatch: http.StatusForbidden,

	ErrCodeInvalidCredentials: http.StatusUnauthorized,
	ErrCodeAccountLocked:      http.StatusLocked,
	ErrCodeAccountDisabled:    http.StatusForbidden,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeInvalidState:  http.StatusUnprocessableEntity,

	ErrCodeQuotaExceeded: http.StatusInsufficientStorage,
	ErrCodeSyncFailed:    http.StatusBadGateway,
	ErrCodeRemote:        http.StatusBadGateway,
	ErrCodeUnavailable:   http.StatusServiceUnavailable,

	ErrCodeRenderFailed:  http.StatusInternalServerError,
	ErrCodeRenderTimeout: http.StatusGatewayTimeout,

	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodes maps shared.DomainError codes to API codes
var domainCodes = map[string]string{
	shared.CodeNotFound:         ErrCodeNotFound,
	shared.CodeAlreadyExists:    ErrCodeAlreadyExists,
	shared.CodeInvalidInput:     ErrCodeInvalidInput,
	shared.CodeValidationFailed: ErrCodeValidation,
	shared.CodeUnauthorized:     ErrCodeUnauthorized,
	shared.CodeForbidden:        ErrCodeForbidden,
	shared.CodeInvalidState:     ErrCodeInvalidState,
	shared.CodeQuotaExceeded:    ErrCodeQuotaExceeded,
	shared.CodeSyncFailed:       ErrCodeSyncFailed,
	"INVALID_CREDENTIALS":       ErrCodeInvalidCredentials,
	"ACCOUNT_LOCKED":            ErrCodeAccountLocked,
	"ACCOUNT_DEACTIVATED":       ErrCodeAccountDisabled,
	"INTERNAL_ERROR":            ErrCodeInternal,
}

// renderCodes maps printing.RenderError codes to API codes
var renderCodes = map[string]string{
	printing.ErrCodeRenderTimeout:    ErrCodeRenderTimeout,
	printing.ErrCodeInvalidHTML:      ErrCodeRenderFailed,
	printing.ErrCodeInvalidPaperSize: ErrCodeInvalidInput,
	printing.ErrCodeNotFound:         ErrCodeNotFound,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if c, ok := domainCodes[code]; ok {
		return c
	}
	return code
}

// ErrorFromError classifies err into an API error. Errors the client cannot act
// on are reported as internal without their message.
func ErrorFromError(err error) *ErrorInfo {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return &ErrorInfo{Code: ErrCodeValidation, Message: verr.Message, Details: verr.Fields}
	}
	var derr *shared.DomainError
	if errors.As(err, &derr) {
		return &ErrorInfo{Code: NormalizeErrorCode(derr.Code), Message: derr.Message}
	}
	var rerr *printing.RenderError
	if errors.As(err, &rerr) {
		code, ok := renderCodes[rerr.Code]
		if !ok {
			code = ErrCodeRenderFailed
		}
		return &ErrorInfo{Code: code, Message: rerr.Message}
	}
	var aerr *remote.APIError
	if errors.As(err, &aerr) {
		return &ErrorInfo{Code: ErrCodeRemote, Message: aerr.ServerMessage()}
	}
	if errors.Is(err, remote.ErrTransient) || errors.Is(err, remote.ErrMalformedResponse) {
		return &ErrorInfo{Code: ErrCodeUnavailable, Message: "Remote service is unavailable"}
	}
	return &ErrorInfo{Code: ErrCodeInternal, Message: "An unexpected error occurred"}
}
