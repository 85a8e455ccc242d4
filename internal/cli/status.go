package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KafClaw/wagateway/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ wagateway Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local configuration and gateway status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 wagateway Status")
		fmt.Printf("Version: %s\n", version)

		// Check config
		if configPath, err := config.ConfigPath(); err == nil {
			if _, err := os.Stat(configPath); err == nil {
				fmt.Println("Config:  ✓ Found (" + configPath + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (" + configPath + "), using defaults and environment")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:  ? Unable to load config: %v\n", err)
			return
		}
		if cfg.Gateway.AuthToken != "" {
			fmt.Println("API Token: ✓ Set")
		} else {
			fmt.Println("API Token: ✗ Not set (export API_TOKEN)")
		}

		// WhatsApp session + QR location
		if _, err := os.Stat(cfg.WhatsApp.SessionDBPath()); err == nil {
			fmt.Println("WhatsApp Link: ✓ Session store found (" + cfg.WhatsApp.SessionDBPath() + ")")
		} else {
			fmt.Println("WhatsApp Link: ✗ No session (QR needed)")
			if cfg.WhatsApp.QRFile != "" {
				fmt.Println("WhatsApp QR:   " + cfg.WhatsApp.QRFile)
			}
		}

		if cfg.Kafka.Enabled() {
			fmt.Printf("Event Sink: ✓ Kafka %s → %s\n", cfg.Kafka.Brokers, cfg.Kafka.Topic)
		} else {
			fmt.Println("Event Sink: – Disabled")
		}

		if cfg.Gateway.AuthToken == "" {
			return
		}
		status, err := queryGatewayStatus(cmd.Context(), localURL(cfg.Gateway), cfg.Gateway.AuthToken)
		if err != nil {
			fmt.Printf("Gateway: ✗ Not reachable (%v)\n", err)
			return
		}
		fmt.Printf("Gateway: ✓ Running, session %s\n", status)
	},
}

// localURL addresses a gateway on this host; wildcard hosts map to loopback.
func localURL(g config.GatewayConfig) string {
	host := g.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, g.Port)
}

func queryGatewayStatus(ctx context.Context, baseURL, token string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/status", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, body.Error)
	}
	return body.Status, nil
}
