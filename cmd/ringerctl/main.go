// Command ringerctl is a CLI client for the ringer control-plane HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	httpClient = &http.Client{Timeout: 30 * time.Second}
)

var rootCmd = &cobra.Command{
	Use:   "ringerctl",
	Short: "Client for the ringer crawl engine control plane.",
	Long: `ringerctl drives a running ringer server over its HTTP control API:
creating, starting, stopping and inspecting crawls, downloading results, and
collecting seed URLs from search engines.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "ringer server base URL")

	rootCmd.AddCommand(createCmd, startCmd, stopCmd, deleteCmd, listCmd, statusCmd, getCmd, recordsCmd, seedsCmd, analyzersCmd)
}

var createCmd = &cobra.Command{
	Use:   "create <spec.json>",
	Short: "Create a crawl from a CrawlSpec JSON file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading spec file: %w", err)
		}
		payload := fmt.Sprintf(`{"crawl_spec": %s}`, body)
		return doRequest(http.MethodPost, "/crawls/", payload)
	},
}

var startCmd = &cobra.Command{
	Use:   "start <crawl_id>",
	Short: "Start a created or stopped crawl.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodPost, "/crawls/"+args[0]+"/start", "")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <crawl_id>",
	Short: "Stop a running crawl.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodPost, "/crawls/"+args[0]+"/stop", "")
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <crawl_id>",
	Short: "Delete a non-running crawl and its results.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodDelete, "/crawls/"+args[0], "")
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known crawl.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodGet, "/crawls/", "")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <crawl_id>",
	Short: "Show one crawl's lifecycle and counters.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodGet, "/crawls/"+args[0]+"/status", "")
	},
}

var getCmd = &cobra.Command{
	Use:   "get <crawl_id>",
	Short: "Show one crawl's spec and results_id.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodGet, "/crawls/"+args[0], "")
	},
}

var (
	recordCount int
	scoreType   string
)

var recordsCmd = &cobra.Command{
	Use:   "records <crawl_id>",
	Short: "Fetch the top-scoring records for a crawl's results bucket.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := fmt.Sprintf(`{"record_count": %d, "score_type": %q}`, recordCount, scoreType)
		return doRequest(http.MethodPost, "/results/"+args[0]+"/records", payload)
	},
}

func init() {
	recordsCmd.Flags().IntVar(&recordCount, "count", 10, "maximum number of records to return")
	recordsCmd.Flags().StringVar(&scoreType, "score-type", "composite", "composite or an analyzer name")
}

var seedsCmd = &cobra.Command{
	Use:   "seeds <search_engine> <query>",
	Short: "Collect seed URLs for one search engine query.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := fmt.Sprintf(`{"search_engine_seeds": [{"search_engine": %q, "query": %q, "result_count": 10}]}`, args[0], args[1])
		return doRequest(http.MethodPost, "/seeds/collect", payload)
	},
}

var analyzersCmd = &cobra.Command{
	Use:   "analyzers",
	Short: "List the available analyzer kinds and their configuration fields.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodGet, "/analyzers/info", "")
	},
}

func doRequest(method, path, body string) error {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, serverAddr+path, reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", serverAddr, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
