package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gridwire-go/gridwire/internal/config"
	"github.com/gridwire-go/gridwire/internal/errors"
	"github.com/gridwire-go/gridwire/pkg/store"
)

func savesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saves",
		Short: "Manage stored game sessions",
		Long: `Manage the saves in the project's configured store.

Examples:
  gridwire saves list
  gridwire saves delete evening`,
	}

	cmd.AddCommand(
		savesListCmd(),
		savesDeleteCmd(),
	)

	return cmd
}

func savesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saves in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromWorkingDir()
			if err != nil {
				return err
			}
			saves, err := openStore(cfg)
			if err != nil {
				return err
			}

			infos, err := saves.List(context.Background())
			if err != nil {
				return errors.New("E061").Wrap(err)
			}
			if len(infos) == 0 {
				info("No saves in the %s store", cfg.Saves.Backend)
				return nil
			}

			fmt.Println()
			for _, save := range infos {
				fmt.Printf("  %-24s %10s  %s\n", save.Name,
					formatBytes(save.Size), save.ModTime.Format("2006-01-02 15:04"))
			}
			fmt.Println()
			return nil
		},
	}
}

func savesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a save from the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if name == "" || strings.ContainsAny(name, `/\`) {
				return errors.New("E102").
					WithDetail("Save name " + strconv.Quote(name) + " contains path syntax")
			}

			cfg, err := config.LoadFromWorkingDir()
			if err != nil {
				return err
			}
			saves, err := openStore(cfg)
			if err != nil {
				return err
			}

			if err := saves.Delete(context.Background(), name); err != nil {
				if stderrors.Is(err, store.ErrNoSave) {
					return errors.New("E060").
						WithDetail("No save named " + strconv.Quote(name) + " in the " + cfg.Saves.Backend + " store").
						WithSuggestion("Run 'gridwire saves list' to see what exists")
				}
				return err
			}

			success("Deleted %s", name)
			return nil
		},
	}
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
