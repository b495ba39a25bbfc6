package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xreason-ai/identity-core/domains/auth/be/token"
	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

// devTokenCommand mints a signed session token locally, for dev and test
// setups that share TOKEN_SECRET with the API.
func devTokenCommand() *cobra.Command {
	var (
		secret    string
		issuer    string
		userID    string
		email     string
		name      string
		role      string
		tenantID  string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Generate a signed session token for dev/local use",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("parse user id: %w", err)
			}

			user := identity.User{
				ID:       uid,
				Email:    email,
				Name:     name,
				Role:     rbac.Role(role),
				IsActive: true,
			}

			var tenant *identity.Tenant
			if tenantID != "" {
				tid, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("parse tenant id: %w", err)
				}
				tenant = &identity.Tenant{ID: tid, Status: identity.TenantActive}
			}

			svc := token.New(token.Config{
				Secret: []byte(secret),
				Issuer: issuer,
				TTL:    expiresIn,
			})

			raw, _, err := svc.Mint(user, tenant)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret (must match the API's TOKEN_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "override iss; defaults to the service issuer")
	cmd.Flags().StringVar(&userID, "user-id", "", "sub claim (UUID)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&name, "name", "Dev User", "display name")
	cmd.Flags().StringVar(&role, "role", string(rbac.RoleViewer), "user role")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "tid claim (UUID)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")

	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
