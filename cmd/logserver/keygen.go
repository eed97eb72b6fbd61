package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/akave-ai/logserver/internal/config"
	"github.com/akave-ai/logserver/internal/token"
)

func newKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the RSA key pair used to sign tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			bits, _ := cmd.Flags().GetInt("bits")
			force, _ := cmd.Flags().GetBool("force")

			if !force {
				if _, err := os.Stat(cfg.Keys.PrivateKey); err == nil {
					return fmt.Errorf("%s exists; use --force to replace it (issued tokens stop verifying)", cfg.Keys.PrivateKey)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			kp, err := token.GenerateKeyPair(bits)
			if err != nil {
				return err
			}
			if err := kp.Save(cfg.Keys.PrivateKey, cfg.Keys.PublicKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", cfg.Keys.PrivateKey, cfg.Keys.PublicKey)
			return nil
		},
	}
	cmd.Flags().Int("bits", token.DefaultKeyBits, "RSA modulus size")
	cmd.Flags().Bool("force", false, "overwrite an existing key pair")
	return cmd
}
