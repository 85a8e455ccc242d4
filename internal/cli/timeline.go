package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/wagateway/internal/config"
	"github.com/KafClaw/wagateway/internal/timeline"
)

var (
	timelineLimit     int
	timelineKind      string
	timelinePeer      string
	timelineDirection string
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print recent gateway events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		svc, err := timeline.NewService(cfg.WhatsApp.TimelineDBPath())
		if err != nil {
			return err
		}
		defer svc.Close()

		events, err := svc.GetEvents(timeline.FilterArgs{
			Limit:     timelineLimit,
			Kind:      timelineKind,
			Peer:      timelinePeer,
			Direction: timelineDirection,
		})
		if err != nil {
			return fmt.Errorf("read timeline: %w", err)
		}
		printTimeline(os.Stdout, events)
		return nil
	},
}

func init() {
	timelineCmd.Flags().IntVarP(&timelineLimit, "limit", "n", 20, "Number of events to show")
	timelineCmd.Flags().StringVar(&timelineKind, "kind", "", "Filter by kind (message, status, send)")
	timelineCmd.Flags().StringVar(&timelinePeer, "peer", "", "Filter by chat or destination")
	timelineCmd.Flags().StringVar(&timelineDirection, "direction", "", "Filter by direction (inbound, outbound, system)")
}

func printTimeline(w io.Writer, events []timeline.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}
	for _, e := range events {
		arrow := "•"
		switch e.Direction {
		case timeline.DirectionInbound:
			arrow = color.GreenString("←")
		case timeline.DirectionOutbound:
			arrow = color.BlueString("→")
		}
		line := fmt.Sprintf("%s %s %-7s", e.Timestamp.Local().Format("2006-01-02 15:04:05"), arrow, e.Kind)
		if e.Peer != "" {
			line += " " + e.Peer
		}
		content := []rune(strings.ReplaceAll(e.Content, "\n", " "))
		if len(content) > 60 {
			content = append(content[:57], []rune("...")...)
		}
		line += " " + string(content)
		if e.Status == timeline.DeliveryFailed {
			line += " " + color.RedString("[failed: %s]", e.Metadata)
		}
		fmt.Fprintln(w, line)
	}
}
