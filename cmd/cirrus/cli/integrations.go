package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// RegisterIntegrationCommands adds AWS Identity Center integration commands.
func RegisterIntegrationCommands(root *cobra.Command) {
	intCmd := &cobra.Command{
		Use:   "integration",
		Short: "Manage AWS Identity Center (SSO) integrations",
	}

	intCmd.AddCommand(newIntegrationListCmd())
	intCmd.AddCommand(newIntegrationCreateCmd())
	intCmd.AddCommand(newIntegrationSyncCmd())
	intCmd.AddCommand(newIntegrationLogoutCmd())
	intCmd.AddCommand(newIntegrationDeleteCmd())

	root.AddCommand(intCmd)
}

func newIntegrationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List SSO integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			integrations, err := e.Repo.GetAwsSsoIntegrations()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tALIAS\tPORTAL\tREGION\tSTATE\tSESSIONS")
			for i := range integrations {
				integration := &integrations[i]
				state := "offline"
				if e.Integrations.IsOnline(integration) {
					remaining := time.Until(*integration.AccessTokenExpiration)
					state = fmt.Sprintf("online (%dm left)", int(remaining.Minutes()))
				}
				sessions, err := e.Repo.GetAwsSsoIntegrationSessions(integration.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					shortID(integration.ID), integration.Alias, integration.PortalURL,
					integration.Region, state, len(sessions))
			}
			w.Flush()
			return nil
		},
	}
}

func newIntegrationCreateCmd() *cobra.Command {
	var portalURL, region string
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "create <alias>",
		Short: "Register an Identity Center portal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			integration, err := e.Integrations.Create(args[0], portalURL, region, !noBrowser)
			if err != nil {
				return err
			}
			fmt.Printf("Created integration %s (%s); run 'cirrus integration sync %s' to log in\n",
				integration.Alias, shortID(integration.ID), shortID(integration.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&portalURL, "portal-url", "", "Identity Center start URL")
	cmd.Flags().StringVar(&region, "region", "", "Identity Center region")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the verification URL instead of opening a browser")
	cmd.MarkFlagRequired("portal-url")
	cmd.MarkFlagRequired("region")
	return cmd
}

func newIntegrationSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <integration-id>",
		Short: "Log in if needed and synchronize role sessions with the portal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			diff, err := e.Integrations.SyncSessions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Sync complete: %d sessions added, %d removed\n", len(diff.ToAdd), len(diff.ToDelete))
			return nil
		},
	}
}

func newIntegrationLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <integration-id>",
		Short: "Invalidate the portal token and mark the integration offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Integrations.Logout(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Integration %s is now offline\n", shortID(args[0]))
			return nil
		},
	}
}

func newIntegrationDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <integration-id>",
		Short: "Delete an integration and every session it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Integrations.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted integration %s and its sessions\n", shortID(args[0]))
			return nil
		},
	}
}
