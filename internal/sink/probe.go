package sink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/KafClaw/wagateway/internal/config"
)

// ProbeResult describes one broker check.
type ProbeResult struct {
	Broker     string
	OK         bool
	Partitions int
	Leaders    int
	Detail     string
	Hint       string
}

// partitionReader is the part of *kafka.Conn the probe uses.
type partitionReader interface {
	ApiVersions() ([]kafka.ApiVersion, error)
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

type dialFunc func(ctx context.Context, network, addr string) (partitionReader, error)

func kafkaDial(ctx context.Context, network, addr string) (partitionReader, error) {
	d := &kafka.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Probe checks every configured broker for reachability and topic visibility.
func Probe(ctx context.Context, cfg config.KafkaConfig, timeout time.Duration) []ProbeResult {
	return probe(ctx, cfg, timeout, kafkaDial)
}

func probe(ctx context.Context, cfg config.KafkaConfig, timeout time.Duration, dial dialFunc) []ProbeResult {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var out []ProbeResult
	for _, addr := range cfg.BrokerList() {
		out = append(out, probeBroker(ctx, addr, cfg.Topic, timeout, dial))
	}
	return out
}

func probeBroker(ctx context.Context, addr, topic string, timeout time.Duration, dial dialFunc) ProbeResult {
	res := ProbeResult{Broker: addr}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		res.Detail = fmt.Sprintf("broker dial failed: %v", err)
		res.Hint = hint(err)
		return res
	}
	defer conn.Close()

	if _, err := conn.ApiVersions(); err != nil {
		res.Detail = fmt.Sprintf("ApiVersions failed: %v", err)
		res.Hint = "Broker incompatible or proxy interfering."
		return res
	}

	parts, err := conn.ReadPartitions(topic)
	if err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			res.OK = true
			res.Detail = "topic not created yet; the first publish creates it"
			return res
		}
		res.Detail = fmt.Sprintf("ReadPartitions failed: %v", err)
		res.Hint = hint(err)
		return res
	}
	for _, p := range parts {
		if p.Topic != topic {
			continue
		}
		res.Partitions++
		if p.Leader.Host != "" {
			res.Leaders++
		}
	}
	res.OK = true
	res.Detail = fmt.Sprintf("topic %s visible; partitions=%d leaders=%d", topic, res.Partitions, res.Leaders)
	return res
}

func hint(err error) string {
	var ke kafka.Error
	if errors.As(err, &ke) {
		switch ke {
		case kafka.TopicAuthorizationFailed:
			return "Missing topic ACL: Write/Describe for produce."
		case kafka.SASLAuthenticationFailed:
			return "Verify sasl.mechanism and credentials."
		case kafka.LeaderNotAvailable, kafka.NotLeaderForPartition:
			return "Leader not available; check broker health."
		}
	}
	if isTimeout(err) {
		return "Client timeout: check network path, firewall, DNS or advertised.listeners."
	}
	em := strings.ToLower(err.Error())
	switch {
	case strings.Contains(em, "connection refused"):
		return "Nothing listening on that address."
	case strings.Contains(em, "eof"), strings.Contains(em, "tls"):
		return "TLS mismatch; verify the listener protocol."
	}
	return ""
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
