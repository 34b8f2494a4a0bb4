// Package businessflow contains the campaign lifecycle, audience and job administration use cases
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrCampaignSuspended  = errors.New("campaign is suspended")
	ErrCampaignIDRequired = errors.New("campaign id is required")
	ErrNoMainAccount      = errors.New("campaign has no main account")

	// Account-related errors
	ErrAccountNotAttached    = errors.New("account is not attached to the campaign")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
	ErrAccountTokenInvalid   = errors.New("account token is invalid")
	ErrSubscriptionFailed    = errors.New("page subscription failed")
	ErrUnknownAccountJobKind = errors.New("unknown account job kind")

	// Job-related errors
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotRestartable = errors.New("job cannot be restarted")
	ErrJobNotCancellable = errors.New("job cannot be cancelled")

	// Audience and export errors
	ErrAudienceNotFound = errors.New("audience record not found")
	ErrExportNotFound   = errors.New("export not found")
	ErrExportExpired    = errors.New("export has expired")
	ErrNothingToExport  = errors.New("campaign has no audience records")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
	ErrInvalidSince    = errors.New("since must be an RFC 3339 timestamp")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignSuspended(err error) bool {
	return errors.Is(err, ErrCampaignSuspended)
}

func IsAccountNotAttached(err error) bool {
	return errors.Is(err, ErrAccountNotAttached)
}

func IsTokenExchangeFailed(err error) bool {
	return errors.Is(err, ErrTokenExchangeFailed)
}

func IsAccountTokenInvalid(err error) bool {
	return errors.Is(err, ErrAccountTokenInvalid)
}

func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

func IsJobConflict(err error) bool {
	return errors.Is(err, ErrJobNotRestartable) || errors.Is(err, ErrJobNotCancellable)
}

func IsExportNotFound(err error) bool {
	return errors.Is(err, ErrExportNotFound)
}

func IsAudienceNotFound(err error) bool {
	return errors.Is(err, ErrAudienceNotFound)
}

// IsNotFound reports whether err is any of the not-found errors of the package
func IsNotFound(err error) bool {
	return IsCampaignNotFound(err) || IsJobNotFound(err) || IsExportNotFound(err) ||
		IsAudienceNotFound(err) || IsAccountNotAttached(err)
}

// BusinessErrorCode returns the code of the outermost BusinessError in err, if any
func BusinessErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
