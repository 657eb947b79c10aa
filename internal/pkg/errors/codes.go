package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrServiceUnavail  = 1008

	// Auth errors (2000-2999)
	ErrAuthInvalidCredentials = 2000
	ErrAuthInvalidToken       = 2006
	ErrAuthAdminNotFound      = 2010
	ErrAuthInvalidRole        = 2011

	// Post errors (3000-3999)
	ErrPostNotFound     = 3000
	ErrPostInvalidInput = 3001
	ErrPostSlugConflict = 3002

	// Media errors (4000-4999)
	ErrMediaNotFound       = 4000
	ErrMediaInvalidUpload  = 4001
	ErrMediaStorageFailed  = 4002
	ErrMediaCleanupFailed  = 4003
	ErrMediaDeleteFailed   = 4004
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrAuthInvalidCredentials: {ErrAuthInvalidCredentials, http.StatusUnauthorized, "Invalid username or password"},
	ErrAuthInvalidToken:       {ErrAuthInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
	ErrAuthAdminNotFound:      {ErrAuthAdminNotFound, http.StatusNotFound, "Admin not found"},
	ErrAuthInvalidRole:        {ErrAuthInvalidRole, http.StatusBadRequest, "Invalid role"},

	ErrPostNotFound:     {ErrPostNotFound, http.StatusNotFound, "Post not found"},
	ErrPostInvalidInput: {ErrPostInvalidInput, http.StatusBadRequest, "Invalid post input"},
	ErrPostSlugConflict: {ErrPostSlugConflict, http.StatusConflict, "Could not allocate a unique slug"},

	ErrMediaNotFound:       {ErrMediaNotFound, http.StatusNotFound, "Media file not found"},
	ErrMediaInvalidUpload:  {ErrMediaInvalidUpload, http.StatusBadRequest, "Invalid upload"},
	ErrMediaStorageFailed:  {ErrMediaStorageFailed, http.StatusInternalServerError, "Media storage failed"},
	ErrMediaCleanupFailed:  {ErrMediaCleanupFailed, http.StatusInternalServerError, "Media cleanup failed"},
	ErrMediaDeleteFailed:   {ErrMediaDeleteFailed, http.StatusInternalServerError, "Media deletion failed"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= http.StatusInternalServerError
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
