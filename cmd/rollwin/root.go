package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

type client struct {
	baseURL string
	http    *http.Client
}

func newRootCommand() *cobra.Command {
	var server string
	var timeout time.Duration
	c := &client{}

	rootCmd := &cobra.Command{
		Use:           "rollwin",
		Short:         "Client de l'API rollwind",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.baseURL = strings.TrimRight(server, "/")
			c.http = &http.Client{Timeout: timeout}
		},
	}

	rootCmd.PersistentFlags().StringVar(&server, "server", envOr("ROLLWIN_SERVER_URL", "http://127.0.0.1:8686"), "URL du serveur")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout HTTP")

	rootCmd.AddCommand(
		getCommand(c, "health", "État du démon et de ses dépendances", "/api/v1/health?deep=true"),
		getCommand(c, "version", "Version du démon", "/api/v1/version"),
		getCommand(c, "plan", "Décisions du prochain cycle, sans écriture", "/api/v1/plan"),
		newRunsCommand(c),
		newRunCommand(c),
		newSettingsCommand(c),
	)
	return rootCmd
}

func getCommand(c *client, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd, http.MethodGet, path, nil)
		},
	}
}

func newRunsCommand(c *client) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "Historique des cycles, ou détail d'un cycle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return c.do(cmd, http.MethodGet, "/api/v1/runs/"+args[0], nil)
			}
			return c.do(cmd, http.MethodGet, "/api/v1/runs?limit="+strconv.Itoa(limit), nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Nombre de cycles")
	return cmd
}

func newRunCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Déclenche un cycle immédiatement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd, http.MethodPost, "/api/v1/runs", nil)
		},
	}
}

func newSettingsCommand(c *client) *cobra.Command {
	var lookahead, retention int
	var idle, dryRun bool

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Affiche ou modifie les paramètres de fenêtre",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("lookahead") && !flags.Changed("retention-days") && !flags.Changed("include-idle") && !flags.Changed("dry-run") {
				return c.do(cmd, http.MethodGet, "/api/v1/settings", nil)
			}

			// Lecture puis écriture : seuls les champs passés en option changent.
			var current map[string]any
			if err := c.getJSON("/api/v1/settings", &current); err != nil {
				return err
			}
			if flags.Changed("lookahead") {
				current["lookahead"] = lookahead
			}
			if flags.Changed("retention-days") {
				current["retentionDays"] = retention
			}
			if flags.Changed("include-idle") {
				current["includeIdleShows"] = idle
			}
			if flags.Changed("dry-run") {
				current["dryRun"] = dryRun
			}
			body, err := json.Marshal(current)
			if err != nil {
				return err
			}
			return c.do(cmd, http.MethodPut, "/api/v1/settings", body)
		},
	}
	cmd.Flags().IntVar(&lookahead, "lookahead", 0, "Épisodes monitored devant chaque spectateur")
	cmd.Flags().IntVar(&retention, "retention-days", 0, "Jours de rétention après le dernier visionnage")
	cmd.Flags().BoolVar(&idle, "include-idle", false, "Planifier aussi les séries sans historique")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Ne rien écrire dans Sonarr")
	return cmd
}

func (c *client) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// do exécute la requête et affiche la réponse JSON indentée.
func (c *client) do(cmd *cobra.Command, method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	out := cmd.OutOrStdout()
	var pretty any
	if err := json.Unmarshal(b, &pretty); err == nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(pretty)
	} else {
		_, _ = out.Write(append(b, '\n'))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
