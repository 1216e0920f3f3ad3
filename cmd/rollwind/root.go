package main

import (
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/buildinfo"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/config"
)

type rootFlags struct {
	config string
	addr   string
	db     string
	dryRun bool
}

func newRootCommand() *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:           "rollwind",
		Short:         "Fenêtre glissante Sonarr pilotée par l'historique Tautulli",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Fichier de configuration YAML")
	rootCmd.PersistentFlags().StringVar(&flags.addr, "addr", "", "Adresse d'écoute (ex: 127.0.0.1:8686)")
	rootCmd.PersistentFlags().StringVar(&flags.db, "db", "", "Chemin SQLite (ex: rollwin.db)")
	rootCmd.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "Calcule les décisions sans écrire dans Sonarr")

	rootCmd.AddCommand(newOnceCommand(&flags))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// newOnceCommand exécute un seul cycle puis rend la main (usage cron).
func newOnceCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Exécute un cycle et affiche son compte rendu",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			run, err := runOnce(ctx, cfg)
			if werr := writeJSON(cmd, run); werr != nil {
				return werr
			}
			return err
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Affiche la version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd, buildinfo.Current())
		},
	}
}

func loadConfig(cmd *cobra.Command, flags rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = flags.addr
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = flags.db
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Window.DryRun = flags.dryRun
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
