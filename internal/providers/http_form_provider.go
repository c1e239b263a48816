package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/osvaldoandrade/formfill/internal/tracing"
	"github.com/osvaldoandrade/formfill/pkg/domain"
)

type httpFormProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFormProvider talks to a REST form backend:
//
//	GET  {base}/forms/{id}            -> domain.Form
//	POST {base}/forms/{id}/responses  <- domain.Response
func NewHTTPFormProvider(baseURL string, client *http.Client) FormProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &httpFormProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *httpFormProvider) Fields(ctx context.Context, formURL string) ([]domain.Field, error) {
	id, err := FormIDFromURL(formURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.formEndpoint(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch form %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrFormNotFound, id)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch form %s: %s", id, statusError(resp))
	}

	var form domain.Form
	if err := json.NewDecoder(resp.Body).Decode(&form); err != nil {
		return nil, fmt.Errorf("decode form %s: %w", id, err)
	}
	if form.Items == nil {
		form.Items = []domain.Field{}
	}
	return form.Items, nil
}

func (p *httpFormProvider) Submit(ctx context.Context, formURL string, r domain.Response) error {
	id, err := FormIDFromURL(formURL)
	if err != nil {
		return err
	}
	r.FormID = id
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.formEndpoint(id)+"/responses", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit response to %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("submit response to %s: %s", id, statusError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p *httpFormProvider) formEndpoint(id string) string {
	return p.baseURL + "/forms/" + url.PathEscape(id)
}

func statusError(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return resp.Status
	}
	return resp.Status + ": " + msg
}
