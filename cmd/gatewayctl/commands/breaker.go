package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// NewBreakerCommand inspects the running gateway's circuit breakers.
func NewBreakerCommand() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "breakers",
		Short: "Show circuit breaker states",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				apiURL = os.Getenv("GATEWAY_URL")
			}
			if apiURL == "" {
				apiURL = "http://localhost:8080"
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Get(apiURL + "/v1/admin/breakers")
			if err != nil {
				return fmt.Errorf("failed to reach gateway: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, body)
			}

			var states map[string]map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}

			if len(states) == 0 {
				fmt.Println("No breakers yet (no upstream calls made)")
				return nil
			}

			out, err := json.MarshalIndent(states, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "gateway base URL (defaults to GATEWAY_URL or http://localhost:8080)")

	return cmd
}
