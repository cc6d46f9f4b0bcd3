package campaign

import (
	"errors"
	"net/http"
)

// ErrAccountNotFound is what an AccountSource returns when the owner has
// never saved email settings. Create maps it to ErrConfigurationRequired;
// any other lookup error surfaces as an internal failure.
var ErrAccountNotFound = errors.New("email account not found")

// ServiceError is the campaign error taxonomy. It carries the HTTP status
// and machine-readable code the API layer writes into the error envelope.
type ServiceError struct {
	Code    string
	Status  int
	Message string
}

func (e *ServiceError) Error() string     { return e.Message }
func (e *ServiceError) HTTPStatus() int   { return e.Status }
func (e *ServiceError) ErrorCode() string { return e.Code }

var (
	// ErrNotFound means the campaign does not exist or belongs to another owner.
	ErrNotFound = &ServiceError{
		Code: "campaign_not_found", Status: http.StatusNotFound,
		Message: "campaign not found",
	}

	// ErrSegmentNotFound means the target segment does not exist for this owner.
	ErrSegmentNotFound = &ServiceError{
		Code: "segment_not_found", Status: http.StatusNotFound,
		Message: "segment not found",
	}

	// ErrConfigurationRequired blocks creation until the owner has set up a
	// sending provider.
	ErrConfigurationRequired = &ServiceError{
		Code: "email_not_configured", Status: http.StatusPreconditionFailed,
		Message: "no email provider configured, set up email settings first",
	}

	// ErrEmptyAudience blocks creation of campaigns nobody would receive.
	ErrEmptyAudience = &ServiceError{
		Code: "empty_audience", Status: http.StatusBadRequest,
		Message: "segment matches no customers",
	}

	// ErrTemplateInvalid rejects campaigns with a blank subject or body.
	ErrTemplateInvalid = &ServiceError{
		Code: "invalid_template", Status: http.StatusBadRequest,
		Message: "template subject and body are required",
	}

	// ErrNameRequired rejects campaigns without a name.
	ErrNameRequired = &ServiceError{
		Code: "invalid_name", Status: http.StatusBadRequest,
		Message: "campaign name is required",
	}
)
