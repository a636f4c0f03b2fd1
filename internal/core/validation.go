package core

// validation.go checks a Talk against its domain constraints before it is
// written. Parsing has already guaranteed the fields are well-formed; these
// rules cover what a well-formed row may still get wrong.

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxLinkLength is the longest accepted link, in characters.
const MaxLinkLength = 500

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationErrors is every rule a talk violated.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// TalkValidator applies the domain rules for a Talk.
type TalkValidator struct {
	now func() time.Time
}

// NewTalkValidator returns a validator; now defaults to time.Now.
func NewTalkValidator(now func() time.Time) *TalkValidator {
	if now == nil {
		now = time.Now
	}
	return &TalkValidator{now: now}
}

// Validate returns nil or a ValidationErrors listing every violation.
func (v *TalkValidator) Validate(t Talk) error {
	var errs ValidationErrors

	if strings.TrimSpace(t.Title) == "" {
		errs = append(errs, ValidationError{Field: "title", Message: "required field is empty"})
	}
	if strings.TrimSpace(t.Speaker) == "" {
		errs = append(errs, ValidationError{Field: "speaker", Message: "required field is empty"})
	}
	if strings.TrimSpace(t.Link) == "" {
		errs = append(errs, ValidationError{Field: "link", Message: "required field is empty"})
	} else if n := utf8.RuneCountInString(t.Link); n > MaxLinkLength {
		errs = append(errs, ValidationError{Field: "link", Message: fmt.Sprintf("longer than %d characters (%d)", MaxLinkLength, n)})
	}

	switch {
	case t.Date.IsZero():
		errs = append(errs, ValidationError{Field: "date", Message: "required field is empty"})
	case t.Date.After(v.now()):
		errs = append(errs, ValidationError{Field: "date", Message: "must not be in the future"})
	}

	if t.Views < 0 {
		errs = append(errs, ValidationError{Field: "views", Message: "must be non-negative"})
	}
	if t.Likes < 0 {
		errs = append(errs, ValidationError{Field: "likes", Message: "must be non-negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
