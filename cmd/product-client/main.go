package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pdlbus/internal/config"
	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
	"pdlbus/internal/signature"
	"pdlbus/pkg/logging"
)

var (
	configFile string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "product-client",
		Short:         "Create, sign and announce products",
		Long:          "Product Client builds product documents, signs and verifies them, and publishes notifications to the bus",
		Version:       constants.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level when no config file is given")

	rootCmd.AddCommand(sendCmd(), signCmd(), verifyCmd(), keygenCmd())

	if err := rootCmd.Execute(); err != nil {
		logging.NewEarlyLog().Error("%v", err)
	}
}

// loadConfig returns nil without error when no config is given and
// required is false.
func loadConfig(required bool) (*config.Config, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile == "" {
		if required {
			return nil, fmt.Errorf("config file is required. Use --config flag or CONFIG_FILE environment variable")
		}
		return nil, nil
	}
	return config.Load(configFile)
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	if cfg == nil {
		return logger.New(logLevel, logger.WithEncoding("console"))
	}
	return logger.New(cfg.Logging.Level, logger.WithEncoding(cfg.Logging.Format))
}

func addProductFlags(cmd *cobra.Command, f *productFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.File, "file", "", "Product JSON document, - for stdin")
	flags.StringVar(&f.Source, "source", "", "Product source network")
	flags.StringVar(&f.Type, "type", "", "Product type")
	flags.StringVar(&f.Code, "code", "", "Product code")
	flags.StringVar(&f.UpdateTime, "update-time", "", "Product update time, ISO-8601 (default now)")
	flags.StringVar(&f.Status, "status", "", "Product status (default UPDATE)")
	flags.StringArrayVar(&f.Properties, "property", nil, "Product property name=value, repeatable")
	flags.StringArrayVar(&f.Links, "link", nil, "Product link relation=url, repeatable")
	flags.StringVar(&f.Content, "content", "", "Content file, - for stdin")
	flags.StringVar(&f.ContentType, "content-type", "application/octet-stream", "Content MIME type")
}

func sendCmd() *cobra.Command {
	var (
		pf   productFlags
		opts SendOptions
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Announce a product on the bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			if opts.KeyFile == "" {
				opts.KeyFile = cfg.Signature.PrivateKeyFile
			}

			p, err := pf.build()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			_, err = NewClient(log, cmd.OutOrStdout()).Send(ctx, cfg, p, opts)
			return err
		},
	}

	addProductFlags(cmd, &pf)
	cmd.Flags().StringVar(&opts.StorageDir, "storage-dir", "", "Write the product document below this directory before sending")
	cmd.Flags().StringVar(&opts.KeyFile, "private-key", "", "Sign with this private key (default signature.private_key_file)")
	return cmd
}

func signCmd() *cobra.Command {
	var (
		pf      productFlags
		keyFile string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a product and print the signed document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			if keyFile == "" && cfg != nil {
				keyFile = cfg.Signature.PrivateKeyFile
			}
			if keyFile == "" {
				return fmt.Errorf("--private-key is required")
			}

			p, err := pf.build()
			if err != nil {
				return err
			}
			if err := NewClient(log, cmd.OutOrStdout()).Sign(p, keyFile); err != nil {
				return err
			}
			return writeProduct(cmd.OutOrStdout(), p)
		},
	}

	addProductFlags(cmd, &pf)
	cmd.Flags().StringVar(&keyFile, "private-key", "", "Private key file (default signature.private_key_file)")
	return cmd
}

func verifyCmd() *cobra.Command {
	var (
		file       string
		publicKeys []string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the signature of a product document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			keys, err := keySource(publicKeys, cfg)
			if err != nil {
				return err
			}
			p, err := readProduct(file)
			if err != nil {
				return err
			}

			key, err := NewClient(log, cmd.OutOrStdout()).Verify(p, keys)
			if err != nil {
				return err
			}
			name := ""
			if named, ok := keys.(*signature.ConfigKeySource); ok {
				name = named.Name(key)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "verified %s with key %s\n", p.ID, name)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "Product JSON document, - for stdin")
	cmd.Flags().StringArrayVar(&publicKeys, "public-key", nil, "Trusted public key file, repeatable (default signature.keys)")
	return cmd
}

func keygenCmd() *cobra.Command {
	var keyType, output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(nil)
			if err != nil {
				return err
			}
			defer log.Sync()
			return NewClient(log, cmd.OutOrStdout()).Keygen(keyType, output)
		},
	}

	cmd.Flags().StringVar(&keyType, "type", signature.KeyTypeEd25519, "Key type: ed25519, rsa or ecdsa")
	cmd.Flags().StringVar(&output, "output", "pdlbus_signing_key", "Private key path; the public key is written to <output>.pub")
	return cmd
}
