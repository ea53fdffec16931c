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

	"github.com/quiverdb/quiver/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change the cluster topology",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the cluster config currently in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		body, err := httpGet(server + "/v1/cluster/config")
		if err != nil {
			return err
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err != nil {
			return fmt.Errorf("gateway returned malformed config: %w", err)
		}
		fmt.Println(pretty.String())
		return nil
	},
}

var configApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Submit a new cluster config",
	Long: `Submit a new cluster config from a JSON file. Shards present in the new
config but not in the old one are populated by an online data migration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		file, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		// Parse locally first so obvious mistakes fail before the request
		var cfg types.ClusterConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("config file is not valid JSON: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid cluster config: %w", err)
		}

		req, err := http.NewRequest(http.MethodPut, server+"/v1/cluster/config", bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := clusterHTTPClient().Do(req)
		if err != nil {
			return fmt.Errorf("gateway unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("config rejected (%s): %s", resp.Status, bytes.TrimSpace(body))
		}

		fmt.Printf("Cluster config applied: %d shards\n", len(cfg.Shards))
		return nil
	},
}

func init() {
	configCmd.PersistentFlags().String("server", "http://localhost:7600", "gateway address")
	configApplyCmd.Flags().StringP("file", "f", "", "path to the cluster config JSON file")
	_ = configApplyCmd.MarkFlagRequired("file")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configApplyCmd)
}

func clusterHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func httpGet(url string) ([]byte, error) {
	resp, err := clusterHTTPClient().Get(url)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return body, nil
}
