package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ArenaPilot/internal/config"
	"ArenaPilot/internal/model"
	"ArenaPilot/internal/notifier"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print scheduler stats from a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				cfg, err := config.Load(flagConfig)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				server = localURL(cfg.HTTP.Addr)
			}
			stats, err := fetchStats(server)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), notifier.FormatStats(stats))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "status server URL (defaults to http.addr from config)")
	return cmd
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func fetchStats(server string) (model.SchedulerStats, error) {
	var stats model.SchedulerStats
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(server, "/") + "/stats")
	if err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("query stats: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}
