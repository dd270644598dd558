package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"go.pilab.hu/authserver/config"
	"go.pilab.hu/authserver/internal/crypto"
)

func newKeygenCmd() *cobra.Command {
	var (
		dir   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA signing key pair",
		Long: fmt.Sprintf("Writes %s and %s into the keys directory (JWT_KEYS_DIR unless --dir is given).",
			crypto.PrivateKeyFile, crypto.PublicKeyFile),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				cfg, err := config.LoadConfig(cfgFile)
				if err != nil {
					return err
				}
				dir = cfg.KeysDir
			}

			return runKeygen(cmd, dir, force)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key pair")

	return cmd
}

func runKeygen(cmd *cobra.Command, dir string, force bool) error {
	privPath := filepath.Join(dir, crypto.PrivateKeyFile)
	if _, err := os.Stat(privPath); err == nil && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", privPath)
	}

	key, err := crypto.GenerateRSAKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	if err := crypto.WriteKeyPair(dir, key); err != nil {
		return err
	}

	kid, err := crypto.DeriveKeyID(&key.PublicKey)
	if err != nil {
		return err
	}

	cmd.Printf("Wrote key pair to %s (kid %s)\n", dir, kid)

	return nil
}
