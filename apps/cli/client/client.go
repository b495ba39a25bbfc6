// Package client wires the CLI subcommands to the identity API: a session
// manager backed by the HTTP auth endpoints with a file token store, and a
// tenant manager backed by the HTTP tenant directory.
package client

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/session"
	"github.com/xreason-ai/identity-core/platform/go/tenantctx"
)

const (
	defaultAPIURL = "http://localhost:3000"
	apiURLEnv     = "IDENTITY_API_URL"
)

// Client bundles the authenticated collaborators a subcommand needs.
type Client struct {
	Sessions *session.Manager
	Tenants  *tenantctx.Manager
}

// APIURL resolves the service base URL: explicit flag value, then the
// IDENTITY_API_URL environment variable, then the local default.
func APIURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(apiURLEnv); v != "" {
		return v
	}
	return defaultAPIURL
}

// New builds the session and tenant managers against the given base URL. The
// session token persists under the user config directory so separate CLI
// invocations share a login.
func New(baseURL string) (*Client, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}

	store, err := session.NewFileTokenStore(dir)
	if err != nil {
		return nil, fmt.Errorf("init token store: %w", err)
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}

	sessions := session.NewManager(session.Config{
		Backend: session.NewHTTPBackend(baseURL, httpClient),
		Tokens:  store,
	})

	directory := tenantctx.NewHTTPDirectory(baseURL, httpClient, func() (string, bool) {
		sess := sessions.CurrentSession()
		if sess == nil {
			return "", false
		}
		return sess.Token, true
	})

	tenants := tenantctx.NewManager(tenantctx.Config{
		Directory: directory,
		OnActiveChange: func(t *identity.Tenant) {
			sessions.SetTenant(t)
		},
	})

	return &Client{Sessions: sessions, Tenants: tenants}, nil
}

func configDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "xreason-identity"), nil
}
