package main

import (
	"fmt"

	"github.com/spf13/cobra"

	domdoc "github.com/kailas-cloud/docchat/internal/domain/document"
	logpkg "github.com/kailas-cloud/docchat/internal/logger"
)

// newDocumentCmd registers documents so their owners can ask about them.
// Chunks are written to the index by the ingestion side; this only records ownership.
func newDocumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Manage document ownership records",
	}

	var configPath, owner, name string
	add := &cobra.Command{
		Use:   "add <document-id>",
		Short: "Register a document for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := domdoc.New(args[0], owner, name)
			if err != nil {
				return fmt.Errorf("invalid document: %w", err)
			}

			cfg, env, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			stores, err := openBackends(ctx, &cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			if err := stores.documents.Put(ctx, &doc); err != nil {
				return fmt.Errorf("register document: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s for %s\n", doc.ID(), doc.OwnerID())
			return nil
		},
	}
	add.Flags().StringVar(&configPath, "config", "", "config file (default: config/$ENV.yaml)")
	add.Flags().StringVar(&owner, "owner", "", "owning user id")
	add.Flags().StringVar(&name, "name", "", "display name")
	_ = add.MarkFlagRequired("owner")

	cmd.AddCommand(add)
	return cmd
}
