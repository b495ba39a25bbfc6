package auth

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xreason-ai/identity-core/apps/cli/client"
	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// Command groups authentication helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication (login, whoami, logout, dev tokens)",
	}

	cmd.AddCommand(loginCommand())
	cmd.AddCommand(whoamiCommand())
	cmd.AddCommand(logoutCommand())
	cmd.AddCommand(devTokenCommand())
	return cmd
}

func loginCommand() *cobra.Command {
	var (
		apiURL   string
		email    string
		password string
		tenantID string
	)

	c := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and persist the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := client.New(client.APIURL(apiURL))
			if err != nil {
				return err
			}

			creds := identity.Credentials{Email: email, Password: password}
			if tenantID != "" {
				id, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("parse tenant id: %w", err)
				}
				creds.TenantID = &id
			}

			if err := cli.Sessions.Login(cmd.Context(), creds); err != nil {
				return err
			}

			sess := cli.Sessions.CurrentSession()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", sess.User.Email, sess.User.Role)
			if sess.Tenant != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Active tenant: %s (%s)\n", sess.Tenant.Name, sess.Tenant.Slug)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No tenant membership yet.")
			}
			return nil
		},
	}

	c.Flags().StringVar(&apiURL, "api-url", "", "identity API base URL (defaults to $IDENTITY_API_URL)")
	c.Flags().StringVar(&email, "email", "", "account email")
	c.Flags().StringVar(&password, "password", "", "account password")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "tenant to activate on login (UUID)")

	_ = c.MarkFlagRequired("email")
	_ = c.MarkFlagRequired("password")

	return c
}

func whoamiCommand() *cobra.Command {
	var apiURL string

	c := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session (user, role, tenant, permissions)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := client.New(client.APIURL(apiURL))
			if err != nil {
				return err
			}

			if err := cli.Sessions.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			if !cli.Sessions.IsAuthenticated() {
				return fmt.Errorf("no valid session, run `xid auth login`")
			}

			sess := cli.Sessions.CurrentSession()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:   %s <%s>\n", sess.User.Name, sess.User.Email)
			fmt.Fprintf(out, "Role:   %s\n", sess.User.Role)
			if sess.Tenant != nil {
				fmt.Fprintf(out, "Tenant: %s (%s, %s)\n", sess.Tenant.Name, sess.Tenant.Slug, sess.Tenant.Status)
			} else {
				fmt.Fprintln(out, "Tenant: none")
			}
			fmt.Fprintf(out, "Expires: %s\n", sess.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintln(out, "Permissions:")
			for _, p := range sess.User.Permissions {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			return nil
		},
	}

	c.Flags().StringVar(&apiURL, "api-url", "", "identity API base URL (defaults to $IDENTITY_API_URL)")
	return c
}

func logoutCommand() *cobra.Command {
	var apiURL string

	c := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and clear the persisted token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := client.New(client.APIURL(apiURL))
			if err != nil {
				return err
			}

			// Bootstrap so the manager holds the token; a stale token was
			// already cleared from the store during bootstrap.
			if err := cli.Sessions.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			if !cli.Sessions.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "No active session.")
				return nil
			}

			cli.Sessions.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}

	c.Flags().StringVar(&apiURL, "api-url", "", "identity API base URL (defaults to $IDENTITY_API_URL)")
	return c
}
