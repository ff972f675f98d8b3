package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// RegisterIdpUrlCommands adds identity-provider URL commands.
func RegisterIdpUrlCommands(root *cobra.Command) {
	idpCmd := &cobra.Command{
		Use:   "idp-url",
		Short: "Manage identity-provider sign-in URLs",
	}

	idpCmd.AddCommand(newIdpUrlListCmd())
	idpCmd.AddCommand(newIdpUrlCreateCmd())
	idpCmd.AddCommand(newIdpUrlEditCmd())
	idpCmd.AddCommand(newIdpUrlDeleteCmd())

	root.AddCommand(idpCmd)
}

func newIdpUrlListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List IdP URLs and their dependant session counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			urls, err := e.Repo.GetIdpUrls()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tURL\tDEPENDANT_SESSIONS")
			for _, u := range urls {
				dependants, err := e.IdpUrls.DependantSessions(u.ID, true)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%d\n", shortID(u.ID), u.URL, len(dependants))
			}
			w.Flush()
			return nil
		},
	}
}

func newIdpUrlCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <url>",
		Short: "Register an IdP sign-in URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			u, err := e.IdpUrls.Create(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created IdP URL %s (%s)\n", u.URL, shortID(u.ID))
			return nil
		},
	}
}

func newIdpUrlEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <idp-url-id> <new-url>",
		Short: "Change an IdP URL's value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.IdpUrls.Edit(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Updated IdP URL %s\n", shortID(args[0]))
			return nil
		},
	}
}

func newIdpUrlDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <idp-url-id>",
		Short: "Delete an IdP URL and every session built on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.IdpUrls.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted IdP URL %s and its dependant sessions\n", shortID(args[0]))
			return nil
		},
	}
}
