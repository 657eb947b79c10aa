package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
)

// Response is the envelope every API endpoint answers with
type Response struct {
	Code    int    `json:"code"` // business code, 0 on success
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

// Success 200
func Success(c *gin.Context, data any) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{Code: apperrors.Success, Data: data})
}

// Created 201
func Created(c *gin.Context, data any) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusCreated, Response{Code: apperrors.Success, Data: data})
}

// Error writes a bare error envelope with the HTTP status as code
func Error(c *gin.Context, httpStatus int, message string) {
	c.AbortWithStatusJSON(httpStatus, Response{
		Code:    httpStatus,
		Message: message,
		Data:    struct{}{},
	})
}

func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, apperrors.ErrInvalidParams, message)
}

func Unauthorized(c *gin.Context, message string) {
	ErrorWithCode(c, apperrors.ErrUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	ErrorWithCode(c, apperrors.ErrForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	ErrorWithCode(c, apperrors.ErrNotFound, message)
}

// HandleError answers with the code carried by err, internal error otherwise
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	code := apperrors.ExtractCode(err)
	ErrorWithCode(c, code, apperrors.GetDetails(err))
}

// ErrorWithCode answers with a business error code
func ErrorWithCode(c *gin.Context, code int, details ...string) {
	c.AbortWithStatusJSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, details...),
		Data:    struct{}{},
	})
}
