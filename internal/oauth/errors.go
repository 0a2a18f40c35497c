package oauth

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is the typed failure every operation returns. Errno is the
// stable numeric code clients switch on; Status is the HTTP status the
// transport maps it to.
type AppError struct {
	Status  int
	Errno   int
	Code    string
	Message string

	// Optional structured detail.
	Scopes    []string  // offending tokens on a scope rejection
	ExpiredAt time.Time // set on ExpiredToken
	Param     string    // offending parameter name
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s (errno %d): %s", e.Code, e.Errno, e.Message)
}

const (
	ErrnoUnknownClient           = 101
	ErrnoIncorrectSecret         = 102
	ErrnoIncorrectRedirect       = 103
	ErrnoInvalidAssertion        = 104
	ErrnoUnknownCode             = 105
	ErrnoMismatchCode            = 106
	ErrnoExpiredCode             = 107
	ErrnoInvalidToken            = 108
	ErrnoExistingKey             = 109
	ErrnoInvalidRequestParameter = 110
	ErrnoInvalidResponseType     = 111
	ErrnoInvalidScopes           = 112
	ErrnoExpiredToken            = 115
)

func ErrUnknownClient(idHex string) *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoUnknownClient,
		Code: "unknown_client", Message: "unknown client id: " + idHex,
	}
}

func ErrIncorrectSecret(idHex string) *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoIncorrectSecret,
		Code: "incorrect_secret", Message: "incorrect secret for client " + idHex,
	}
}

func ErrIncorrectRedirect(uri string) *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoIncorrectRedirect,
		Code: "incorrect_redirect", Message: "incorrect redirect_uri: " + uri,
	}
}

func ErrInvalidAssertion() *AppError {
	return &AppError{
		Status: http.StatusUnauthorized, Errno: ErrnoInvalidAssertion,
		Code: "invalid_assertion", Message: "invalid assertion",
	}
}

func ErrUnknownCode() *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoUnknownCode,
		Code: "unknown_code", Message: "unknown code",
	}
}

func ErrMismatchCode() *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoMismatchCode,
		Code: "mismatch_code", Message: "code belongs to a different client",
	}
}

func ErrExpiredCode() *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoExpiredCode,
		Code: "expired_code", Message: "expired code",
	}
}

func ErrInvalidToken() *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoInvalidToken,
		Code: "invalid_token", Message: "invalid token",
	}
}

func ErrExistingKey(key string) *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoExistingKey,
		Code: "existing_key", Message: "already exists: " + key,
	}
}

func ErrInvalidRequestParameter(param string) *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoInvalidRequestParameter,
		Code: "invalid_request_parameter", Message: "invalid parameter: " + param,
		Param: param,
	}
}

func ErrInvalidResponseType() *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoInvalidResponseType,
		Code: "invalid_response_type", Message: "response_type not allowed for this client",
	}
}

func ErrInvalidScopes(offending []string) *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoInvalidScopes,
		Code: "invalid_scopes", Message: "requested scopes are not allowed",
		Scopes: offending,
	}
}

func ErrExpiredToken(expiredAt time.Time) *AppError {
	return &AppError{
		Status: http.StatusBadRequest, Errno: ErrnoExpiredToken,
		Code: "expired_token", Message: "expired token",
		ExpiredAt: expiredAt,
	}
}

func ErrUnauthorized(msg string) *AppError {
	if msg == "" {
		msg = "missing or malformed credential"
	}
	return &AppError{
		Status: http.StatusUnauthorized, Errno: http.StatusUnauthorized,
		Code: "unauthorized", Message: msg,
	}
}

func ErrForbidden() *AppError {
	return &AppError{
		Status: http.StatusForbidden, Errno: http.StatusForbidden,
		Code: "forbidden", Message: "insufficient scope",
	}
}

func ErrServiceUnavailable() *AppError {
	return &AppError{
		Status: http.StatusServiceUnavailable, Errno: http.StatusServiceUnavailable,
		Code: "service_unavailable", Message: "storage unavailable",
	}
}
