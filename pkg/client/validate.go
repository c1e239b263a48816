package client

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidFormURL = errors.New("form URL must be an editable Google Forms link")

var formURLPattern = regexp.MustCompile(`^https://docs\.google\.com/forms/d/[A-Za-z0-9_-]+/edit`)

// ValidateFormURL gates submission on the editable-form link shape.
func ValidateFormURL(formURL string) error {
	if !formURLPattern.MatchString(strings.TrimSpace(formURL)) {
		return fmt.Errorf("%w: %q", ErrInvalidFormURL, formURL)
	}
	return nil
}
