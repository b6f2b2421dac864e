package dto

import "net/http"

// BaseResponse is the envelope of every API answer.
type BaseResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func NewBaseResponse(code int, message string, data interface{}) *BaseResponse {
	return &BaseResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func NewSuccessResponse(message string, data interface{}) *BaseResponse {
	return NewBaseResponse(http.StatusOK, message, data)
}

// NewBadRequestResponse carries field errors in data when there are any.
func NewBadRequestResponse(message string, data interface{}) *BaseResponse {
	return NewBaseResponse(http.StatusBadRequest, message, data)
}

func NewNotFoundResponse(message string) *BaseResponse {
	return NewBaseResponse(http.StatusNotFound, message, nil)
}

// NewValidationFailedResponse answers a resource rejected by synchronous validation.
func NewValidationFailedResponse(message string, failure ValidationFailure) *BaseResponse {
	return NewBaseResponse(http.StatusConflict, message, failure)
}

func NewInternalErrorResponse(message string) *BaseResponse {
	return NewBaseResponse(http.StatusInternalServerError, message, nil)
}
