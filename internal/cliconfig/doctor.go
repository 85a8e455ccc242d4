// Package cliconfig runs local setup diagnostics for the wagateway CLI.
package cliconfig

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/KafClaw/wagateway/internal/config"
	"github.com/KafClaw/wagateway/internal/sink"
)

type DoctorStatus string

const (
	DoctorPass DoctorStatus = "pass"
	DoctorWarn DoctorStatus = "warn"
	DoctorFail DoctorStatus = "fail"
)

type DoctorCheck struct {
	Name    string
	Status  DoctorStatus
	Message string
}

type DoctorReport struct {
	Checks []DoctorCheck
}

type DoctorOptions struct {
	// Fix tightens permissions on the config file and data directory.
	Fix bool
	// GenerateToken writes a fresh random API token to the config file.
	GenerateToken bool
	// ProbeKafka dials the configured brokers.
	ProbeKafka   bool
	ProbeTimeout time.Duration
}

// minTokenLength is the shortest token doctor accepts without a warning.
const minTokenLength = 16

func (r DoctorReport) HasFailures() bool {
	for _, c := range r.Checks {
		if c.Status == DoctorFail {
			return true
		}
	}
	return false
}

func (r *DoctorReport) add(name string, status DoctorStatus, format string, args ...any) {
	r.Checks = append(r.Checks, DoctorCheck{Name: name, Status: status, Message: fmt.Sprintf(format, args...)})
}

func RunDoctor() (DoctorReport, error) {
	return RunDoctorWithOptions(context.Background(), DoctorOptions{})
}

func RunDoctorWithOptions(ctx context.Context, opts DoctorOptions) (DoctorReport, error) {
	report := DoctorReport{Checks: make([]DoctorCheck, 0, 10)}

	cfgPath, err := config.ConfigPath()
	if err != nil {
		report.add("config_path", DoctorFail, "cannot resolve config path: %v", err)
		return report, nil
	}

	if info, err := os.Stat(cfgPath); err != nil {
		if os.IsNotExist(err) {
			report.add("config_file", DoctorWarn, "config file not found at %s (defaults and environment will be used)", cfgPath)
		} else {
			report.add("config_file", DoctorFail, "cannot access config file: %v", err)
		}
	} else {
		report.add("config_file", DoctorPass, "config file found at %s", cfgPath)
		checkMode(&report, "config_permissions", cfgPath, info.Mode().Perm(), 0o600, opts.Fix)
	}

	cfg, err := config.Load()
	if err != nil {
		report.add("config_load", DoctorFail, "config load failed: %v", err)
		return report, nil
	}
	report.add("config_load", DoctorPass, "config loaded successfully")

	if opts.GenerateToken {
		token, genErr := randomToken()
		switch {
		case genErr != nil:
			report.add("api_token_generate", DoctorFail, "failed to generate token: %v", genErr)
		default:
			cfg.Gateway.AuthToken = token
			if saveErr := config.Save(cfg); saveErr != nil {
				report.add("api_token_generate", DoctorFail, "generated token but failed to save config: %v", saveErr)
			} else {
				report.add("api_token_generate", DoctorPass, "generated and saved API token to %s", cfgPath)
			}
		}
	}

	checkToken(&report, cfg.Gateway.AuthToken)

	if err := cfg.Validate(); err != nil {
		report.add("config_valid", DoctorFail, "%v", err)
	} else {
		report.add("config_valid", DoctorPass, "gateway settings are valid")
	}

	if isLoopbackHost(cfg.Gateway.Host) {
		report.add("gateway_bind", DoctorPass, "gateway listens on loopback (%s)", cfg.Gateway.Addr())
	} else {
		report.add("gateway_bind", DoctorWarn, "gateway listens on %s; put TLS in front before exposing it", cfg.Gateway.Addr())
	}

	if info, err := os.Stat(cfg.WhatsApp.DataDir); err != nil {
		report.add("data_dir", DoctorWarn, "data dir %s does not exist yet; the gateway creates it", cfg.WhatsApp.DataDir)
	} else if !info.IsDir() {
		report.add("data_dir", DoctorFail, "data dir %s is not a directory", cfg.WhatsApp.DataDir)
	} else {
		report.add("data_dir", DoctorPass, "data dir: %s", cfg.WhatsApp.DataDir)
		checkMode(&report, "data_dir_permissions", cfg.WhatsApp.DataDir, info.Mode().Perm(), 0o700, opts.Fix)
	}

	if _, err := os.Stat(cfg.WhatsApp.SessionDBPath()); err == nil {
		report.add("whatsapp_session", DoctorPass, "linked device session found")
	} else {
		report.add("whatsapp_session", DoctorWarn, "no linked device yet; scan the QR code after starting the gateway")
	}

	checkKafka(ctx, &report, cfg.Kafka, opts)
	return report, nil
}

func checkToken(report *DoctorReport, token string) {
	switch {
	case token == "":
		report.add("api_token", DoctorFail, "API_TOKEN is not set (export API_TOKEN or run doctor --generate-token)")
	case len(token) < minTokenLength:
		report.add("api_token", DoctorWarn, "API_TOKEN is shorter than %d characters", minTokenLength)
	default:
		report.add("api_token", DoctorPass, "API token is configured")
	}
}

func checkMode(report *DoctorReport, name, path string, got, want os.FileMode, fix bool) {
	if got&^want == 0 {
		report.add(name, DoctorPass, "%s mode %04o", path, got)
		return
	}
	if !fix {
		report.add(name, DoctorWarn, "%s mode %04o is wider than %04o (run doctor --fix)", path, got, want)
		return
	}
	if err := os.Chmod(path, want); err != nil {
		report.add(name, DoctorFail, "chmod %s: %v", path, err)
		return
	}
	report.add(name, DoctorPass, "%s mode tightened to %04o", path, want)
}

func checkKafka(ctx context.Context, report *DoctorReport, cfg config.KafkaConfig, opts DoctorOptions) {
	if !cfg.Enabled() {
		report.add("kafka_sink", DoctorPass, "event sink disabled")
		return
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		report.add("kafka_sink", DoctorFail, "kafka brokers set but topic is empty")
		return
	}
	if !opts.ProbeKafka {
		report.add("kafka_sink", DoctorPass, "event sink %s -> %s (not probed)", cfg.Brokers, cfg.Topic)
		return
	}
	for _, res := range sink.Probe(ctx, cfg, opts.ProbeTimeout) {
		if res.OK {
			report.add("kafka_broker", DoctorPass, "%s: %s", res.Broker, res.Detail)
			continue
		}
		msg := res.Detail
		if res.Hint != "" {
			msg += " (" + res.Hint + ")"
		}
		report.add("kafka_broker", DoctorFail, "%s: %s", res.Broker, msg)
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "" {
		return false
	}
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
