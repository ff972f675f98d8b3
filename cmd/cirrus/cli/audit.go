package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cirrus-hq/cirrus/internal/audit"
	"github.com/cirrus-hq/cirrus/internal/config"
	"github.com/cirrus-hq/cirrus/internal/db"
)

// RegisterAuditCommands adds audit log commands. Verification opens the
// audit database directly; no vault passphrase is needed.
func RegisterAuditCommands(root *cobra.Command) {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the lifecycle audit log",
	}

	auditCmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadGlobalConfig()
			if err != nil {
				return err
			}
			auditDB, err := db.OpenAuditDB(cfg.DataDir)
			if err != nil {
				return err
			}
			defer auditDB.Close()

			ok, count, err := audit.Verify(auditDB)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("audit chain verification failed after %d records", count)
			}
			fmt.Printf("Audit chain intact: %d records verified\n", count)
			return nil
		},
	})

	root.AddCommand(auditCmd)
}
