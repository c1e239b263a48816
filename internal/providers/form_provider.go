package providers

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/osvaldoandrade/formfill/pkg/domain"
)

// ErrFormNotFound is returned when the backend has no form for the URL.
var ErrFormNotFound = errors.New("form not found")

// FormProvider is the form backend: a typed field list plus a response sink.
type FormProvider interface {
	Fields(ctx context.Context, formURL string) ([]domain.Field, error)
	Submit(ctx context.Context, formURL string, resp domain.Response) error
}

var formIDPattern = regexp.MustCompile(`/forms/d/([A-Za-z0-9_-]+)`)

// FormIDFromURL extracts the form id from an editor or viewer URL such as
// https://docs.google.com/forms/d/<id>/edit.
func FormIDFromURL(formURL string) (string, error) {
	m := formIDPattern.FindStringSubmatch(formURL)
	if len(m) != 2 {
		return "", fmt.Errorf("cannot extract form id from %q", formURL)
	}
	return m[1], nil
}
