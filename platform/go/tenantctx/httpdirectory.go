package tenantctx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// TokenSource supplies the bearer token for directory calls, typically a
// closure over the session manager.
type TokenSource func() (string, bool)

// HTTPDirectory implements Directory against the identity REST API. The
// authenticated user is derived server-side from the bearer token, so the
// userID argument of ListMemberships is not sent on the wire.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	token   TokenSource
}

// NewHTTPDirectory builds an HTTPDirectory. token is required; a nil client
// falls back to http.DefaultClient.
func NewHTTPDirectory(baseURL string, client *http.Client, token TokenSource) *HTTPDirectory {
	if token == nil {
		panic("token source is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDirectory{baseURL: strings.TrimRight(baseURL, "/"), client: client, token: token}
}

func (d *HTTPDirectory) ListMemberships(ctx context.Context, _ uuid.UUID) ([]identity.Tenant, error) {
	var payload struct {
		Tenants []identity.Tenant `json:"tenants"`
	}
	if err := d.do(ctx, http.MethodGet, "/v1/tenants", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Tenants, nil
}

func (d *HTTPDirectory) SwitchActive(ctx context.Context, tenantID uuid.UUID) error {
	return d.do(ctx, http.MethodPost, "/v1/tenants/"+tenantID.String()+"/switch", nil, nil)
}

func (d *HTTPDirectory) Create(ctx context.Context, input CreateInput) (identity.Tenant, error) {
	var tenant identity.Tenant
	if err := d.do(ctx, http.MethodPost, "/v1/tenants", input, &tenant); err != nil {
		return identity.Tenant{}, err
	}
	return tenant, nil
}

func (d *HTTPDirectory) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (identity.Tenant, error) {
	var tenant identity.Tenant
	if err := d.do(ctx, http.MethodPatch, "/v1/tenants/"+id.String(), input, &tenant); err != nil {
		return identity.Tenant{}, err
	}
	return tenant, nil
}

func (d *HTTPDirectory) Delete(ctx context.Context, id uuid.UUID) error {
	return d.do(ctx, http.MethodDelete, "/v1/tenants/"+id.String(), nil, nil)
}

func (d *HTTPDirectory) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, ok := d.token()
	if !ok {
		return fmt.Errorf("%w: no session token", identity.ErrDirectory)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", identity.ErrDirectory, method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return d.mapProblem(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", identity.ErrDirectory, err)
	}
	return nil
}

// mapProblem converts an application/problem+json error response back onto
// the identity error taxonomy using the problem type emitted by the server.
func (d *HTTPDirectory) mapProblem(resp *http.Response) error {
	var problem struct {
		Type   string `json:"type"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&problem)

	detail := problem.Detail
	if detail == "" {
		detail = problem.Title
	}
	if detail == "" {
		detail = fmt.Sprintf("status %d", resp.StatusCode)
	}

	switch {
	case strings.HasSuffix(problem.Type, "/not-a-member"):
		return fmt.Errorf("%w: %s", identity.ErrNotMember, detail)
	case strings.HasSuffix(problem.Type, "/tenant-inactive"):
		return fmt.Errorf("%w: %s", identity.ErrTenantInactive, detail)
	case strings.HasSuffix(problem.Type, "/no-tenant-available"):
		return fmt.Errorf("%w: %s", identity.ErrNoTenantAvailable, detail)
	default:
		return fmt.Errorf("%w: %s", identity.ErrDirectory, detail)
	}
}
