// Package answers produces a value for each form field. The templated
// strategy is purely local; the assisted strategy routes free-text fields
// through a Generator and falls back to templated short text.
package answers

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/osvaldoandrade/formfill/pkg/domain"
)

// ErrSkipped marks field types that are intentionally left unanswered.
var ErrSkipped = errors.New("field type skipped")

// ErrInvalidField is wrapped by errors caused by the field definition
// itself (no choices, inverted scale, unknown type).
var ErrInvalidField = errors.New("invalid field")

const (
	shortTextPrefix = "Auto_"
	paragraphPrefix = "Auto-generated test response at "
	fixedTime       = "10:30"
	dateLayout      = "2006-01-02"
	base36          = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Strategy answers a single field.
type Strategy interface {
	Answer(ctx context.Context, field domain.Field) (any, error)
}

// Templated answers every supported field from local randomness.
type Templated struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewTemplated(rng *rand.Rand, now func() time.Time) *Templated {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Templated{rng: rng, now: now}
}

func (t *Templated) Answer(ctx context.Context, f domain.Field) (any, error) {
	switch f.Type {
	case domain.FieldText:
		return t.ShortText(), nil
	case domain.FieldParagraphText:
		return t.Paragraph(), nil
	case domain.FieldMultipleChoice, domain.FieldList:
		if len(f.Choices) == 0 {
			return nil, fmt.Errorf("%w: no choices", ErrInvalidField)
		}
		return f.Choices[t.intn(len(f.Choices))], nil
	case domain.FieldCheckbox:
		if len(f.Choices) == 0 {
			return nil, fmt.Errorf("%w: no choices", ErrInvalidField)
		}
		return []string{f.Choices[t.intn(len(f.Choices))]}, nil
	case domain.FieldScale:
		if f.LowerBound > f.UpperBound {
			return nil, fmt.Errorf("%w: scale bounds inverted (%d > %d)", ErrInvalidField, f.LowerBound, f.UpperBound)
		}
		return f.LowerBound + t.intn(f.UpperBound-f.LowerBound+1), nil
	case domain.FieldGrid:
		if err := checkGrid(f); err != nil {
			return nil, err
		}
		out := make([]string, len(f.Rows))
		for i := range f.Rows {
			out[i] = f.Columns[t.intn(len(f.Columns))]
		}
		return out, nil
	case domain.FieldCheckboxGrid:
		if err := checkGrid(f); err != nil {
			return nil, err
		}
		out := make([][]string, len(f.Rows))
		for i := range f.Rows {
			out[i] = []string{f.Columns[t.intn(len(f.Columns))]}
		}
		return out, nil
	case domain.FieldDate:
		return t.now().Format(dateLayout), nil
	case domain.FieldTime:
		return fixedTime, nil
	case domain.FieldRating, domain.FieldFileUpload:
		return nil, ErrSkipped
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidField, f.Type)
	}
}

// ShortText returns "Auto_" followed by five random base36 characters.
func (t *Templated) ShortText() string {
	return shortTextPrefix + t.Base36(5)
}

func (t *Templated) Paragraph() string {
	return paragraphPrefix + t.now().UTC().Format(domain.LogTimeLayout)
}

// Base36 returns n random lowercase base36 characters.
func (t *Templated) Base36(n int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[t.rng.Intn(len(base36))]
	}
	return string(b)
}

func (t *Templated) intn(n int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.Intn(n)
}

func checkGrid(f domain.Field) error {
	if len(f.Rows) == 0 {
		return fmt.Errorf("%w: grid has no rows", ErrInvalidField)
	}
	if len(f.Columns) == 0 {
		return fmt.Errorf("%w: grid has no columns", ErrInvalidField)
	}
	return nil
}
