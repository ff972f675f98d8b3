package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cirrus-hq/cirrus/cmd/cirrus/cli"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cirrus",
		Short: "Local cloud credential lifecycle orchestrator",
		Long: `CIRRUS creates, activates, rotates, and tears down sessions that obtain
temporary cloud credentials: AWS IAM user keys, IAM role assumption via SAML
federation or role chaining, AWS Identity Center roles, Azure, and LocalStack.

Credentials are materialized under named profiles in the AWS shared
credentials file; long-lived secrets live in an encrypted local vault.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Register command groups
	cli.RegisterSessionCommands(rootCmd)
	cli.RegisterProfileCommands(rootCmd)
	cli.RegisterIdpUrlCommands(rootCmd)
	cli.RegisterIntegrationCommands(rootCmd)
	cli.RegisterCredentialProcessCommand(rootCmd)
	cli.RegisterAuditCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
