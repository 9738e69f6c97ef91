package errors

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength  = 6
	maxDeckTitle       = 120
	maxDeckDescription = 500
)

// ValidationResult holds validation results
type ValidationResult struct {
	IsValid bool
	Errors  []*AppError
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(err *AppError) {
	vr.IsValid = false
	vr.Errors = append(vr.Errors, err)
}

// GetFirstError returns the first error or nil
func (vr *ValidationResult) GetFirstError() *AppError {
	if len(vr.Errors) > 0 {
		return vr.Errors[0]
	}
	return nil
}

// Validator provides validation utilities
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEmail checks that email is a single bare address.
func (v *Validator) ValidateEmail(email string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	email = strings.TrimSpace(email)
	if email == "" {
		result.AddError(New(ErrTypeValidation, "EMAIL_EMPTY", "email cannot be empty").
			WithUserMessage("Please enter your email address"))
		return result
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		result.AddError(ErrInvalidEmail.clone())
	}

	return result
}

// ValidatePassword validates password requirements
func (v *Validator) ValidatePassword(password string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if strings.TrimSpace(password) == "" {
		result.AddError(New(ErrTypeValidation, "PASSWORD_EMPTY", "password cannot be empty").
			WithUserMessage("Please enter your password"))
		return result
	}

	if len(password) < minPasswordLength {
		result.AddError(ErrPasswordTooShort.clone())
	}

	return result
}

// ValidateDeck validates a new deck's title and description.
func (v *Validator) ValidateDeck(title, description string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	title = strings.TrimSpace(title)
	if title == "" {
		result.AddError(ErrDeckTitleEmpty.clone())
	} else if utf8.RuneCountInString(title) > maxDeckTitle {
		result.AddError(New(ErrTypeValidation, "DECK_TITLE_TOO_LONG", "deck title too long").
			WithUserMessage("Deck titles can be at most 120 characters").
			WithContext("length", utf8.RuneCountInString(title)))
	}

	if utf8.RuneCountInString(description) > maxDeckDescription {
		result.AddError(New(ErrTypeValidation, "DECK_DESCRIPTION_TOO_LONG", "deck description too long").
			WithUserMessage("Descriptions can be at most 500 characters").
			WithContext("length", utf8.RuneCountInString(description)))
	}

	return result
}

// ValidateProvider checks an OAuth provider name against the enabled list.
func (v *Validator) ValidateProvider(provider string, enabled []string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	for _, p := range enabled {
		if p == provider {
			return result
		}
	}

	result.AddError(ErrProviderNotAllowed.clone().WithContext("provider", provider))
	return result
}
