package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KafClaw/wagateway/internal/config"
)

type fakeConn struct {
	apiErr   error
	parts    []kafka.Partition
	partsErr error
	closed   bool
}

func (c *fakeConn) ApiVersions() ([]kafka.ApiVersion, error) { return nil, c.apiErr }
func (c *fakeConn) ReadPartitions(...string) ([]kafka.Partition, error) {
	return c.parts, c.partsErr
}
func (c *fakeConn) Close() error { c.closed = true; return nil }

func dialTo(conns map[string]*fakeConn) dialFunc {
	return func(_ context.Context, _, addr string) (partitionReader, error) {
		c, ok := conns[addr]
		if !ok {
			return nil, errors.New("dial tcp " + addr + ": connection refused")
		}
		return c, nil
	}
}

func TestProbeReportsEachBroker(t *testing.T) {
	good := &fakeConn{parts: []kafka.Partition{
		{Topic: "wa.events", ID: 0, Leader: kafka.Broker{Host: "k1"}},
		{Topic: "wa.events", ID: 1},
		{Topic: "other", ID: 0, Leader: kafka.Broker{Host: "k1"}},
	}}
	cfg := config.KafkaConfig{Brokers: "k1:9092,k2:9092", Topic: "wa.events"}

	res := probe(context.Background(), cfg, time.Second, dialTo(map[string]*fakeConn{"k1:9092": good}))
	require.Len(t, res, 2)

	assert.True(t, res[0].OK)
	assert.Equal(t, 2, res[0].Partitions)
	assert.Equal(t, 1, res[0].Leaders)
	assert.True(t, good.closed)

	assert.False(t, res[1].OK)
	assert.Equal(t, "k2:9092", res[1].Broker)
	assert.Equal(t, "Nothing listening on that address.", res[1].Hint)
}

func TestProbeMissingTopicIsNotFatal(t *testing.T) {
	conn := &fakeConn{partsErr: kafka.UnknownTopicOrPartition}
	cfg := config.KafkaConfig{Brokers: "k1:9092", Topic: "wa.events"}

	res := probe(context.Background(), cfg, time.Second, dialTo(map[string]*fakeConn{"k1:9092": conn}))
	require.Len(t, res, 1)
	assert.True(t, res[0].OK)
}

func TestProbeAuthorizationFailure(t *testing.T) {
	conn := &fakeConn{partsErr: kafka.TopicAuthorizationFailed}
	cfg := config.KafkaConfig{Brokers: "k1:9092", Topic: "wa.events"}

	res := probe(context.Background(), cfg, time.Second, dialTo(map[string]*fakeConn{"k1:9092": conn}))
	require.Len(t, res, 1)
	assert.False(t, res[0].OK)
	assert.Contains(t, res[0].Hint, "topic ACL")
}

func TestProbeApiVersionsFailure(t *testing.T) {
	conn := &fakeConn{apiErr: errors.New("unexpected EOF")}
	cfg := config.KafkaConfig{Brokers: "k1:9092", Topic: "wa.events"}

	res := probe(context.Background(), cfg, time.Second, dialTo(map[string]*fakeConn{"k1:9092": conn}))
	require.Len(t, res, 1)
	assert.False(t, res[0].OK)
	assert.True(t, conn.closed)
}

func TestProbeWithoutBrokers(t *testing.T) {
	assert.Empty(t, Probe(context.Background(), config.KafkaConfig{}, time.Second))
}
