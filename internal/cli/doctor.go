package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/wagateway/internal/cliconfig"
)

var (
	doctorFix           bool
	doctorGenerateToken bool
	doctorProbeKafka    bool
	doctorProbeTimeout  time.Duration
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run config and setup diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := cliconfig.RunDoctorWithOptions(cmd.Context(), cliconfig.DoctorOptions{
			Fix:           doctorFix,
			GenerateToken: doctorGenerateToken,
			ProbeKafka:    doctorProbeKafka,
			ProbeTimeout:  doctorProbeTimeout,
		})
		if err != nil {
			return err
		}

		failures := 0
		for _, check := range report.Checks {
			symbol := color.GreenString("PASS")
			switch check.Status {
			case cliconfig.DoctorWarn:
				symbol = color.YellowString("WARN")
			case cliconfig.DoctorFail:
				symbol = color.RedString("FAIL")
				failures++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", symbol, check.Name, check.Message)
		}

		if failures > 0 {
			return fmt.Errorf("doctor found %d failing check(s)", failures)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Tighten permissions on the config file and data directory")
	doctorCmd.Flags().BoolVar(&doctorGenerateToken, "generate-token", false, "Generate and persist a new API token")
	doctorCmd.Flags().BoolVar(&doctorProbeKafka, "probe-kafka", false, "Dial the configured Kafka brokers and check the topic")
	doctorCmd.Flags().DurationVar(&doctorProbeTimeout, "probe-timeout", 10*time.Second, "Per-broker timeout for --probe-kafka")
}
