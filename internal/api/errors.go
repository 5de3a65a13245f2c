package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// ApiError is the JSON body of every failed API request.
type ApiError struct {
	StatusCode int      `json:"status_code"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
	Err        error    `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func newApiError(status int, err error) *ApiError {
	return &ApiError{
		StatusCode: status,
		Message:    strings.ToLower(http.StatusText(status)),
		Err:        err,
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, nil)
}

// NewRequestError reports a body that could not be decoded or failed its
// validate tags. Failed fields are listed as "field: tag".
func NewRequestError(err error) *ApiError {
	apiErr := newApiError(http.StatusBadRequest, err)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		apiErr.Fields = lo.Map(verrs, func(fe validator.FieldError, _ int) string {
			return fe.Field() + ": " + fe.Tag()
		})
	}

	return apiErr
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound, nil)
}

func NewInternalServerError(err error) *ApiError {
	return newApiError(http.StatusInternalServerError, err)
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized, nil)
}

// NewConflictError is returned when a username or room name is taken.
func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict, nil)
}
