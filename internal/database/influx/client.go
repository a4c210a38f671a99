// Package influx provides time-series storage for mining throughput
// and submission outcomes, queried by external dashboards independent
// of the in-process Prometheus scrape target.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client wraps InfluxDB operations for mining time-series metrics.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// Config holds InfluxDB connection configuration.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client.
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	return &Client{
		client:   client,
		writeAPI: writeAPI,
	}, nil
}

// Close flushes pending writes and closes the InfluxDB connection.
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity.
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("health check failed: %s", msg)
	}
	return nil
}

// Mining metrics

// WriteHashrateMetric writes a per-worker throughput sample.
func (c *Client) WriteHashrateMetric(address string, workerID int, hashesPerSecond float64) {
	tags := map[string]string{
		"address":   address,
		"worker_id": fmt.Sprintf("%d", workerID),
	}
	fields := map[string]interface{}{
		"hashrate": hashesPerSecond,
	}
	point := write.NewPoint("hashrate", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteSubmissionMetric writes one submission outcome.
func (c *Client) WriteSubmissionMetric(address, challengeID string, accepted, isDevFee bool) {
	tags := map[string]string{
		"address":      address,
		"challenge_id": challengeID,
		"accepted":     fmt.Sprintf("%t", accepted),
		"is_dev_fee":   fmt.Sprintf("%t", isDevFee),
	}
	fields := map[string]interface{}{
		"count": 1,
	}
	point := write.NewPoint("submissions", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteDevFeeRatioMetric writes the live user:dev-fee solution ratio.
func (c *Client) WriteDevFeeRatioMetric(userSolutions, devFeeSolutions int64, ratio float64) {
	fields := map[string]interface{}{
		"user_solutions":    userSolutions,
		"dev_fee_solutions": devFeeSolutions,
		"target_ratio":      ratio,
	}
	point := write.NewPoint("dev_fee_ratio", map[string]string{}, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// Flush forces a write of all pending points.
func (c *Client) Flush() {
	c.writeAPI.Flush()
}
