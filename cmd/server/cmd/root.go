package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "authserver"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "OAuth2 authorization server with PKCE and RS256 access tokens",
	Long: `authserver issues single-use authorization codes to logged-in users and
exchanges them, together with a PKCE verifier, for RS256 signed access tokens.
The signing key is published as a JWKS document.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $HOME/.%s/config.yaml)", appName))

	rootCmd.AddCommand(newServeCmd(), newKeygenCmd())
}
