package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cirrus-hq/cirrus/internal/profile"
)

// RegisterProfileCommands adds named profile commands.
func RegisterProfileCommands(root *cobra.Command) {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage named profiles",
	}

	profileCmd.AddCommand(newProfileListCmd())
	profileCmd.AddCommand(newProfileCreateCmd())
	profileCmd.AddCommand(newProfileRenameCmd())
	profileCmd.AddCommand(newProfileDeleteCmd())
	profileCmd.AddCommand(newProfileAssignCmd())

	root.AddCommand(profileCmd)
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List named profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			profiles, err := e.Repo.GetProfiles()
			if err != nil {
				return err
			}
			sessions, err := e.Repo.GetSessions()
			if err != nil {
				return err
			}

			counts := map[string]int{}
			for _, s := range sessions {
				counts[s.ProfileID]++
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSESSIONS")
			for _, p := range profiles {
				fmt.Fprintf(w, "%s\t%s\t%d\n", shortID(p.ID), p.Name, counts[p.ID])
			}
			w.Flush()
			return nil
		},
	}
}

func newProfileCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a named profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := e.Profiles.Create(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created profile %s (%s)\n", p.Name, shortID(p.ID))
			return nil
		},
	}
}

func newProfileRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <profile-id> <new-name>",
		Short: "Rename a profile, restarting its active sessions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Profiles.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Renamed profile %s to %s\n", shortID(args[0]), args[1])
			return nil
		},
	}
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <profile-id>",
		Short: "Delete a profile, repointing its sessions to the default profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Profiles.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted profile %s; its sessions now use the default profile\n", shortID(args[0]))
			return nil
		},
	}
}

func newProfileAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <session-id> <profile-id>",
		Short: "Repoint a session to another profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := e.Profiles.ChangeProfile(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if result == profile.ChangeSkipped {
				fmt.Println("Session type does not use named profiles; nothing changed")
				return nil
			}
			fmt.Printf("Session %s now uses profile %s\n", shortID(args[0]), shortID(args[1]))
			return nil
		},
	}
}
