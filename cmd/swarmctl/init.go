package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	initRootPath    string
	initDescription string
	initPhaseCount  int
)

var initCmd = &cobra.Command{
	Use:   "init <name> [task-file]",
	Short: "Initialize a project from a plain-text task list",
	Long: `Initialize a project by distributing a task list across phases and
agents. The task list is plain text with one task per line, read from a
file or stdin; blank lines are skipped.

Examples:
  # Initialize from a file
  swarmctl init shop tasks.txt --root /work/shop --phases 3

  # Initialize from stdin
  cat tasks.txt | swarmctl init shop - --root /work/shop`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initRootPath, "root", "", "project root path (required)")
	initCmd.Flags().StringVar(&initDescription, "description", "", "project description")
	initCmd.Flags().IntVar(&initPhaseCount, "phases", 3, "number of phases")
	_ = initCmd.MarkFlagRequired("root")
}

func runInit(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error

	if len(args) < 2 || args[1] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[1], err)
		}
	}

	var tasks []string
	for _, line := range strings.Split(string(content), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tasks = append(tasks, line)
		}
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks to distribute")
	}

	reqJSON, err := json.Marshal(map[string]any{
		"name":        args[0],
		"rootPath":    initRootPath,
		"description": initDescription,
		"tasks":       tasks,
		"phaseCount":  initPhaseCount,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/projects", serverURL)
	resp, err := httpClient().Post(url, "application/json", bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var rec struct {
		ID     string   `json:"id"`
		Name   string   `json:"name"`
		Agents []string `json:"agentList"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Project %s initialized (id %s)\n", rec.Name, rec.ID)
	fmt.Printf("Agents: %s\n", strings.Join(rec.Agents, ", "))
	fmt.Printf("Tasks: %d across %d phases\n", len(tasks), initPhaseCount)
	return nil
}
