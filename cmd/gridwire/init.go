package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gridwire-go/gridwire/internal/config"
	"github.com/gridwire-go/gridwire/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		name  string
		addr  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a gridwire.json in the current directory",
		Long: `Create a gridwire.json with default settings.

The generated file documents every knob the server reads: listen
address, tick rate, lobby limits, save storage and logging.

Examples:
  gridwire init
  gridwire init --name campus --addr :24000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(name, addr, force)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name (defaults to the directory name)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "UDP listen address")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing gridwire.json")

	return cmd
}

func runInit(name, addr string, force bool) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	path := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New("E101").
			WithDetail(config.ConfigFileName + " already exists in this directory").
			WithSuggestion("Pass --force to overwrite it")
	}

	cfg := config.New()
	cfg.Name = filepath.Base(dir)
	if name != "" {
		cfg.Name = name
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	if err := cfg.SaveTo(path); err != nil {
		return err
	}

	printBanner()
	success("Created %s", config.ConfigFileName)
	fmt.Println()
	fmt.Println("  To run a server:")
	fmt.Println()
	fmt.Println("    gridwire serve")
	fmt.Println()
	fmt.Printf("  Clients connect to udp://%s\n", cfg.ListenAddr())
	fmt.Println()

	return nil
}
