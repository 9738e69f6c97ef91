package errors

import "net/http"

// FrontendError represents an error formatted for frontend consumption
type FrontendError struct {
	Type      string                 `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// ToFrontendError converts an AppError to a frontend-friendly format
func ToFrontendError(err error) *FrontendError {
	if appErr, ok := As(err); ok {
		return &FrontendError{
			Type:      string(appErr.Type),
			Code:      appErr.Code,
			Message:   appErr.GetUserMessage(),
			Retryable: appErr.Retryable,
			Context:   appErr.Context,
		}
	}

	// Generic errors never leak their text to the browser
	return &FrontendError{
		Type:      string(ErrTypeApp),
		Code:      "GENERIC_ERROR",
		Message:   "An unexpected error occurred. Please try again",
		Retryable: true,
	}
}

// UserMessage returns the message to show a person for err.
func UserMessage(err error) string {
	return ToFrontendError(err).Message
}

// HTTPStatus maps an error to the status code an API response should carry.
func HTTPStatus(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeAuth:
		return http.StatusUnauthorized
	case ErrTypeNetwork:
		return http.StatusBadGateway
	case ErrTypeQuery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
