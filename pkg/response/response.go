// Package response holds the fixed JSON error bodies returned by the API.
package response

import "github.com/go-playground/validator/v10"

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string             `json:"error"`
	Details []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail describes one rejected field.
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var (
	EmptyRequestBodyResponse = ErrorResponse{Error: "empty request body"}

	InvalidRequestBodyResponse = ErrorResponse{Error: "invalid request body"}

	InvalidURLResponse = ErrorResponse{Error: "a valid image_url starting with https:// is required"}

	FileMissingResponse = ErrorResponse{Error: "file is required"}

	FileTooLargeResponse = ErrorResponse{Error: "file is too large"}

	LinkNotFoundResponse = ErrorResponse{Error: "short link not found"}

	ImageNotFoundResponse = ErrorResponse{Error: "image not found"}

	StatsNotFoundResponse = ErrorResponse{Error: "no access recorded for image"}

	ImageFetchFailedResponse = ErrorResponse{Error: "failed to fetch image"}

	ServerErrorResponse = ErrorResponse{Error: "server error occurred"}
)

func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "url", "secure_url":
		return "must be a url starting with https://"
	default:
		return "invalid value"
	}
}

// WithDetails returns a copy of r carrying the per-field details of a validation error.
func (r ErrorResponse) WithDetails(err error) ErrorResponse {
	r.Details = getValidationDetails(err)
	return r
}

func getValidationDetails(err error) []ValidationDetail {
	var details []ValidationDetail

	errs, ok := err.(validator.ValidationErrors)
	if ok {
		for _, e := range errs {
			details = append(details, ValidationDetail{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return details
}
