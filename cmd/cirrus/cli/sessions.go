package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cirrus-hq/cirrus/internal/session"
)

// RegisterSessionCommands adds session lifecycle commands.
func RegisterSessionCommands(root *cobra.Command) {
	sessCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage credential sessions",
	}

	sessCmd.AddCommand(newSessionListCmd())
	sessCmd.AddCommand(newSessionStartCmd())
	sessCmd.AddCommand(newSessionStopCmd())
	sessCmd.AddCommand(newSessionRotateCmd())
	sessCmd.AddCommand(newSessionDeleteCmd())
	sessCmd.AddCommand(newSessionVerifyCmd())
	sessCmd.AddCommand(newSessionAddIamUserCmd())
	sessCmd.AddCommand(newSessionAddChainedCmd())
	sessCmd.AddCommand(newSessionAddFederatedCmd())

	root.AddCommand(sessCmd)
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			sessions, err := e.Repo.GetSessions()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions found. Use 'cirrus session add-iam-user' or 'cirrus integration sync'.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tREGION\tPROFILE\tSTARTED")
			for _, s := range sessions {
				profileName := ""
				if s.ProfileID != "" {
					if p, err := e.Repo.GetProfileByID(s.ProfileID); err == nil {
						profileName = p.Name
					}
				}
				started := ""
				if s.StartedAt != nil {
					started = s.StartedAt.Local().Format(time.RFC822)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					shortID(s.ID), s.Name, s.Type, s.Status, s.Region, profileName, started)
			}
			w.Flush()
			return nil
		},
	}
}

// lifecycleCmd builds a command that resolves the session's service and runs
// one lifecycle operation on it. The session status afterwards is the real
// outcome; operation failures after the precondition check are reported
// through it, not the exit code.
func lifecycleCmd(use, short string, op func(session.Service, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			sess, err := e.Repo.GetSessionByID(args[0])
			if err != nil {
				return err
			}
			svc, err := e.Factory.ServiceFor(sess.Type)
			if err != nil {
				return err
			}
			if err := op(svc, cmd.Context(), sess.ID); err != nil {
				return err
			}

			if current, err := e.Repo.GetSessionByID(sess.ID); err == nil {
				fmt.Printf("Session %s (%s) is now %s\n", current.Name, shortID(current.ID), current.Status)
			} else {
				fmt.Printf("Session %s (%s) deleted\n", sess.Name, shortID(sess.ID))
			}
			return nil
		},
	}
}

func newSessionStartCmd() *cobra.Command {
	return lifecycleCmd("start", "Activate a session (materialize its credentials)", session.Service.Start)
}

func newSessionStopCmd() *cobra.Command {
	return lifecycleCmd("stop", "Deactivate a session (remove its credentials)", session.Service.Stop)
}

func newSessionRotateCmd() *cobra.Command {
	return lifecycleCmd("rotate", "Refresh an active session's credentials", session.Service.Rotate)
}

func newSessionDeleteCmd() *cobra.Command {
	return lifecycleCmd("delete", "Delete a session and every chained session built on it", session.Service.Delete)
}

func newSessionVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <session-id>",
		Short: "Resolve the principal behind a session via STS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			arn, account, err := e.VerifySession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("ARN:     %s\nAccount: %s\n", arn, account)
			return nil
		},
	}
}

func newSessionAddIamUserCmd() *cobra.Command {
	var region, profileID, accessKeyID, secretAccessKey string

	cmd := &cobra.Command{
		Use:   "add-iam-user <name>",
		Short: "Create an IAM user session from a long-lived key pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			sess, err := e.Creator.CreateIamUser(session.IamUserParams{
				Name:            args[0],
				Region:          regionOrDefault(region, e.Config.DefaultRegion),
				ProfileID:       profileID,
				AccessKeyID:     accessKeyID,
				SecretAccessKey: secretAccessKey,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created session %s (%s)\n", sess.Name, shortID(sess.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "AWS region (defaults to the configured region)")
	cmd.Flags().StringVar(&profileID, "profile-id", "", "named profile id (defaults to the default profile)")
	cmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "long-lived access key id")
	cmd.Flags().StringVar(&secretAccessKey, "secret-access-key", "", "long-lived secret access key")
	cmd.MarkFlagRequired("access-key-id")
	cmd.MarkFlagRequired("secret-access-key")
	return cmd
}

func newSessionAddChainedCmd() *cobra.Command {
	var region, profileID, roleARN, parentID, roleSessionName string

	cmd := &cobra.Command{
		Use:   "add-chained <name>",
		Short: "Create a chained role session on top of an existing session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			sess, err := e.Creator.CreateChained(session.ChainedParams{
				Name:            args[0],
				Region:          regionOrDefault(region, e.Config.DefaultRegion),
				ProfileID:       profileID,
				RoleARN:         roleARN,
				ParentSessionID: parentID,
				RoleSessionName: roleSessionName,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created session %s (%s)\n", sess.Name, shortID(sess.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "AWS region (defaults to the configured region)")
	cmd.Flags().StringVar(&profileID, "profile-id", "", "named profile id (defaults to the default profile)")
	cmd.Flags().StringVar(&roleARN, "role-arn", "", "role to assume")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent session id sourcing the credentials")
	cmd.Flags().StringVar(&roleSessionName, "role-session-name", "", "STS role session name")
	cmd.MarkFlagRequired("role-arn")
	cmd.MarkFlagRequired("parent")
	return cmd
}

func newSessionAddFederatedCmd() *cobra.Command {
	var region, profileID, roleARN, idpURL, idpARN string

	cmd := &cobra.Command{
		Use:   "add-federated <name>",
		Short: "Create a SAML-federated role session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			u, err := e.IdpUrls.Merge(idpURL)
			if err != nil {
				return err
			}
			sess, err := e.Creator.CreateFederated(session.FederatedParams{
				Name:      args[0],
				Region:    regionOrDefault(region, e.Config.DefaultRegion),
				ProfileID: profileID,
				RoleARN:   roleARN,
				IdpURLID:  u.ID,
				IdpARN:    idpARN,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created session %s (%s)\n", sess.Name, shortID(sess.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "AWS region (defaults to the configured region)")
	cmd.Flags().StringVar(&profileID, "profile-id", "", "named profile id (defaults to the default profile)")
	cmd.Flags().StringVar(&roleARN, "role-arn", "", "role to assume")
	cmd.Flags().StringVar(&idpURL, "idp-url", "", "identity provider sign-in URL")
	cmd.Flags().StringVar(&idpARN, "idp-arn", "", "identity provider principal ARN")
	cmd.MarkFlagRequired("role-arn")
	cmd.MarkFlagRequired("idp-url")
	cmd.MarkFlagRequired("idp-arn")
	return cmd
}

func regionOrDefault(region, fallback string) string {
	if region != "" {
		return region
	}
	return fallback
}
