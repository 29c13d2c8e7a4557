package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskhive/service-booking/pkg/domain"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Meta carries pagination details.
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// Success writes a 200 response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Paginated writes a 200 response with pagination metadata.
func Paginated(c *gin.Context, data interface{}, total int64, page, limit int) {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    &Meta{Total: total, Page: page, Limit: limit, TotalPages: pages},
	})
}

// BadRequest writes a 400 validation error.
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Envelope{
		Error: &ErrorBody{Code: domain.CodeValidation, Message: msg},
	})
}

// Unauthorized writes a 401 response.
func Unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{
		Error: &ErrorBody{Code: domain.CodeUnauthorized, Message: msg},
	})
}

// Forbidden writes a 403 response.
func Forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Envelope{
		Error: &ErrorBody{Code: domain.CodeForbidden, Message: msg},
	})
}

// Error maps err to an HTTP status. Errors that are not domain errors are
// reported as 500 without leaking their text.
func Error(c *gin.Context, err error) {
	de, ok := domain.AsDomainError(err)
	if !ok {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, Envelope{
			Error: &ErrorBody{Code: "internal_error", Message: "internal server error"},
		})
		return
	}
	c.AbortWithStatusJSON(StatusFor(de.Code), Envelope{
		Error: &ErrorBody{Code: de.Code, Kind: de.Kind, Message: de.Message},
	})
}

// StatusFor returns the HTTP status used for a domain error code.
func StatusFor(code string) int {
	switch code {
	case domain.CodeValidation, domain.CodeConflict, domain.CodeInvalidState:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConcurrent:
		return http.StatusConflict
	case domain.CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
