package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cirrus-hq/cirrus/internal/session"
)

// RegisterCredentialProcessCommand adds the credential_process entry point.
// The AWS CLI invokes it via a profile's `credential_process` setting and
// reads the JSON document from stdout.
func RegisterCredentialProcessCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "credential-process <session-id>",
		Short: "Emit credential_process JSON for a session (for AWS CLI profiles)",
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
			gen, ok := svc.(session.ProcessCredentialsGenerator)
			if !ok {
				return fmt.Errorf("unsupported session type: %s", sess.Type)
			}

			creds, err := gen.GenerateProcessCredentials(cmd.Context(), sess.ID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			return enc.Encode(creds)
		},
	}

	root.AddCommand(cmd)
}
