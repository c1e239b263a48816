package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sync/atomic"
	"time"

	"github.com/osvaldoandrade/formfill/pkg/domain"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk layout:
//
//	forms:
//	  - id: abc123
//	    title: Feedback
//	    items:
//	      - {id: q1, type: TEXT, title: Name}
type catalogFile struct {
	Forms []domain.Form `yaml:"forms"`
}

type catalogFormProvider struct {
	forms    map[string]domain.Form
	uploader Uploader
	now      func() time.Time
	seq      atomic.Int64
}

// NewCatalogFormProvider serves field lists from a YAML catalog and writes
// each committed response as a JSON artifact through uploader.
func NewCatalogFormProvider(catalogPath string, uploader Uploader, now func() time.Time) (FormProvider, error) {
	b, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("read form catalog: %w", err)
	}
	var cf catalogFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return nil, fmt.Errorf("parse form catalog: %w", err)
	}
	return newCatalogFormProvider(cf.Forms, uploader, now)
}

func newCatalogFormProvider(forms []domain.Form, uploader Uploader, now func() time.Time) (*catalogFormProvider, error) {
	if uploader == nil {
		return nil, fmt.Errorf("catalog form provider requires an uploader")
	}
	if now == nil {
		now = time.Now
	}
	byID := make(map[string]domain.Form, len(forms))
	for _, f := range forms {
		if f.ID == "" {
			return nil, fmt.Errorf("form catalog entry without id")
		}
		if _, dup := byID[f.ID]; dup {
			return nil, fmt.Errorf("duplicate form id %q in catalog", f.ID)
		}
		byID[f.ID] = f
	}
	return &catalogFormProvider{forms: byID, uploader: uploader, now: now}, nil
}

func (p *catalogFormProvider) Fields(ctx context.Context, formURL string) ([]domain.Field, error) {
	f, err := p.lookup(formURL)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Field, len(f.Items))
	copy(out, f.Items)
	return out, nil
}

func (p *catalogFormProvider) Submit(ctx context.Context, formURL string, r domain.Response) error {
	f, err := p.lookup(formURL)
	if err != nil {
		return err
	}
	r.FormID = f.ID
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	name := fmt.Sprintf("%s-%04d.json", p.now().UTC().Format("20060102T150405.000"), p.seq.Add(1))
	if _, err := p.uploader.UploadBytes(ctx, path.Join("responses", f.ID, name), "application/json", b); err != nil {
		return fmt.Errorf("store response: %w", err)
	}
	return nil
}

func (p *catalogFormProvider) lookup(formURL string) (domain.Form, error) {
	id, err := FormIDFromURL(formURL)
	if err != nil {
		return domain.Form{}, err
	}
	f, ok := p.forms[id]
	if !ok {
		return domain.Form{}, fmt.Errorf("%w: %s", ErrFormNotFound, id)
	}
	return f, nil
}
