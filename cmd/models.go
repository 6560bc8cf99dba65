package cmd

import (
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/anthropic-openrouter-proxy/proxy/internal/resolver"
	"github.com/anthropic-openrouter-proxy/proxy/internal/upstream"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the model alias table",
}

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and cache the model alias table from OpenRouter",
	Long:  `Download the OpenRouter model listing, generate an alias table and cache it on disk. The server loads the cached table once at startup.`,
	RunE:  runModelsFetch,
}

func init() {
	modelsCmd.AddCommand(modelsFetchCmd)
}

func runModelsFetch(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(verbose)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	client := upstream.NewClient(logger)

	listing, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	aliases := resolver.GenerateAliases(listing.Data)

	path := cfgMgr.ModelsPath()
	if err := resolver.WriteAliasFile(path, aliases); err != nil {
		return err
	}

	color.Green("Cached %d aliases for %d models to %s", len(aliases), len(listing.Data), path)

	return nil
}
