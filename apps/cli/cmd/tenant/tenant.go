package tenantcmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xreason-ai/identity-core/apps/cli/client"
	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/tenantctx"
)

// Command groups tenant context helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant context (list, switch, create, delete)",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(switchCommand())
	cmd.AddCommand(createCommand())
	cmd.AddCommand(deleteCommand())
	return cmd
}

// authedClient bootstraps a session and loads memberships; every tenant
// subcommand starts here.
func authedClient(cmd *cobra.Command, apiURL string) (*client.Client, error) {
	cli, err := client.New(client.APIURL(apiURL))
	if err != nil {
		return nil, err
	}
	if err := cli.Sessions.Bootstrap(cmd.Context()); err != nil {
		return nil, err
	}
	if !cli.Sessions.IsAuthenticated() {
		return nil, fmt.Errorf("no valid session, run `xid auth login`")
	}

	sess := cli.Sessions.CurrentSession()
	if err := cli.Tenants.LoadMemberships(cmd.Context(), &sess.User, sess.Tenant); err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}
	return cli, nil
}

func listCommand() *cobra.Command {
	var apiURL string

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants the current user belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := authedClient(cmd, apiURL)
			if err != nil {
				return err
			}

			tenants := cli.Tenants.AvailableTenants()
			if len(tenants) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tenant memberships.")
				return nil
			}

			active := cli.Tenants.CurrentTenant()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\tID\tSLUG\tNAME\tTIER\tSTATUS")
			for _, t := range tenants {
				marker := " "
				if active != nil && active.ID == t.ID {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", marker, t.ID, t.Slug, t.Name, t.SubscriptionTier, t.Status)
			}
			return w.Flush()
		},
	}

	c.Flags().StringVar(&apiURL, "api-url", "", "identity API base URL (defaults to $IDENTITY_API_URL)")
	return c
}

func switchCommand() *cobra.Command {
	var apiURL string

	c := &cobra.Command{
		Use:   "switch <tenant-id>",
		Short: "Switch the active tenant context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse tenant id: %w", err)
			}

			cli, err := authedClient(cmd, apiURL)
			if err != nil {
				return err
			}

			if err := cli.Tenants.SwitchTenant(cmd.Context(), id); err != nil {
				return err
			}

			t := cli.Tenants.CurrentTenant()
			fmt.Fprintf(cmd.OutOrStdout(), "Active tenant: %s (%s)\n", t.Name, t.Slug)
			return nil
		},
	}

	c.Flags().StringVar(&apiURL, "api-url", "", "identity API base URL (defaults to $IDENTITY_API_URL)")
	return c
}

func createCommand() *cobra.Command {
	var (
		apiURL string
		name   string
		slug   string
		domain string
		tier   string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant (the caller becomes its owner)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := authedClient(cmd, apiURL)
			if err != nil {
				return err
			}

			input := tenantctx.CreateInput{
				Name:             name,
				Slug:             slug,
				SubscriptionTier: identity.SubscriptionTier(tier),
			}
			if domain != "" {
				input.Domain = &domain
			}

			t, err := cli.Tenants.CreateTenant(cmd.Context(), input)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created tenant %s (%s)\n", t.Slug, t.ID)
			return nil
		},
	}

	c.Flags().StringVar(&apiURL, "api-url", "", "identity API base URL (defaults to $IDENTITY_API_URL)")
	c.Flags().StringVar(&name, "name", "", "tenant display name")
	c.Flags().StringVar(&slug, "slug", "", "tenant slug")
	c.Flags().StringVar(&domain, "domain", "", "tenant domain")
	c.Flags().StringVar(&tier, "tier", string(identity.TierStarter), "subscription tier")

	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("slug")

	return c
}

func deleteCommand() *cobra.Command {
	var apiURL string

	c := &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Delete a tenant and its memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse tenant id: %w", err)
			}

			cli, err := authedClient(cmd, apiURL)
			if err != nil {
				return err
			}

			if err := cli.Tenants.DeleteTenant(cmd.Context(), id); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted tenant %s\n", id)
			if t := cli.Tenants.CurrentTenant(); t != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Active tenant is now %s (%s)\n", t.Name, t.Slug)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No tenant context remains.")
			}
			return nil
		},
	}

	c.Flags().StringVar(&apiURL, "api-url", "", "identity API base URL (defaults to $IDENTITY_API_URL)")
	return c
}
