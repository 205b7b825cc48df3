package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var contextAgentID string

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Read or update the shared project context",
}

var contextGetCmd = &cobra.Command{
	Use:   "get <project-id>",
	Short: "Fetch the shared context for a project",
	Long: `Fetch the shared context payload, version, and accumulated token
savings for a project.

Examples:
  swarmctl context get 7b0c8f2e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runContextGet,
}

var contextPutCmd = &cobra.Command{
	Use:   "put <project-id> [file]",
	Short: "Merge a partial context into a project's shared context",
	Long: `Merge a JSON object into a project's shared context. The input is
read from a file or stdin and merged shallowly by top-level key.

Examples:
  # Merge from a file
  swarmctl context put 7b0c8f2e-... update.json --agent backend-generalist

  # Merge from stdin
  echo '{"completedWork":["Build login API"]}' | swarmctl context put 7b0c8f2e-... - --agent backend-generalist`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runContextPut,
}

func init() {
	contextPutCmd.Flags().StringVar(&contextAgentID, "agent", "", "agent id performing the update (required)")
	_ = contextPutCmd.MarkFlagRequired("agent")
	contextCmd.AddCommand(contextGetCmd)
	contextCmd.AddCommand(contextPutCmd)
}

func runContextGet(cmd *cobra.Command, args []string) error {
	var out struct {
		Context     map[string]any `json:"context"`
		Version     int64          `json:"version"`
		TokensSaved int64          `json:"tokensSaved"`
	}
	if err := getJSON(fmt.Sprintf("%s/context/%s", serverURL, args[0]), &out); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(out.Context, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render context: %w", err)
	}
	fmt.Println(string(payload))
	fmt.Fprintf(os.Stderr, "[swarmctl] version %d, %d tokens saved\n", out.Version, out.TokensSaved)
	return nil
}

func runContextPut(cmd *cobra.Command, args []string) error {
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

	var partial map[string]any
	if err := json.Unmarshal(content, &partial); err != nil {
		return fmt.Errorf("input is not a JSON object: %w", err)
	}

	reqJSON, err := json.Marshal(map[string]any{
		"context": partial,
		"agentId": contextAgentID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/context/%s", serverURL, args[0])
	httpReq, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var put struct {
		TokensSaved int `json:"tokensSaved"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&put); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Merged. %d tokens saved.\n", put.TokensSaved)
	return nil
}
