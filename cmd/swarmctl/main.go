// Package main implements the swarmctl CLI for manual operations
// against the swarmd HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the swarmd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "swarmctl",
	Short: "CLI for swarmd server operations",
	Long: `swarmctl is a command-line interface for interacting with the swarmd daemon.
It provides commands for checking health, initializing projects, querying
progress, and reading or updating the shared project context.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "swarmd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(initCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check swarmd server health",
	Long: `Check the health status of the swarmd HTTP server.

Examples:
  # Check health
  swarmctl health

  # Check health on a different server
  swarmctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// progressCmd queries per-agent and aggregate completion
var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show per-agent and aggregate project progress",
	RunE:  runProgress,
}

// metricsCmd dumps the aggregate store counters
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show shared context store counters",
	RunE:  runMetrics,
}

// HealthResponse matches the daemon /health payload.
type HealthResponse struct {
	Status                string `json:"status"`
	ActiveContextCount    int    `json:"activeContextCount"`
	ActiveConnectionCount int    `json:"activeConnectionCount"`
	Timestamp             string `json:"timestamp"`
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

// getJSON fetches a URL and decodes the JSON body into out.
func getJSON(url string, out any) error {
	resp, err := httpClient().Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	var health HealthResponse
	if err := getJSON(fmt.Sprintf("%s/health", serverURL), &health); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	fmt.Printf("Active Contexts: %d\n", health.ActiveContextCount)
	fmt.Printf("Active Connections: %d\n", health.ActiveConnectionCount)
	return nil
}

func runProgress(cmd *cobra.Command, args []string) error {
	var prog struct {
		Project      string  `json:"project"`
		CurrentPhase int     `json:"currentPhaseOrdinal"`
		TotalPhases  int     `json:"totalPhases"`
		Percentage   float64 `json:"percentage"`
		Agents       []struct {
			Agent          string  `json:"agent"`
			CompletedTasks int     `json:"completedTasks"`
			TotalTasks     int     `json:"totalTasks"`
			Percentage     float64 `json:"percentage"`
			Status         string  `json:"status"`
		} `json:"agents"`
	}
	if err := getJSON(fmt.Sprintf("%s/progress", serverURL), &prog); err != nil {
		return err
	}

	fmt.Printf("Project: %s (phase %d/%d, %.1f%% of current phase)\n",
		prog.Project, prog.CurrentPhase, prog.TotalPhases, prog.Percentage)
	for _, a := range prog.Agents {
		fmt.Printf("  %-24s %3d/%-3d %6.1f%%  %s\n",
			a.Agent, a.CompletedTasks, a.TotalTasks, a.Percentage, a.Status)
	}
	return nil
}

func runMetrics(cmd *cobra.Command, args []string) error {
	var stats map[string]any
	if err := getJSON(fmt.Sprintf("%s/metrics", serverURL), &stats); err != nil {
		return err
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render metrics: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
