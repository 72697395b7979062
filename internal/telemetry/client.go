// Package telemetry writes decoded snapshots to InfluxDB v2.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

const defaultPingTimeout = 5 * time.Second

// Config describes the InfluxDB connection. Telemetry is off unless Enabled is set.
type Config struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	URL           string        `yaml:"url" json:"url" default:"http://localhost:8086"`
	Token         string        `yaml:"token" json:"-"`
	Org           string        `yaml:"org" json:"org"`
	Bucket        string        `yaml:"bucket" json:"bucket" default:"vivotherm"`
	Measurement   string        `yaml:"measurement" json:"measurement" default:"vivotherm"`
	BatchSize     uint          `yaml:"batch_size" json:"batch_size" default:"100"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval" default:"10s"`
}

// PointWriter is the non-blocking write surface. It is satisfied by api.WriteAPI.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client owns the InfluxDB connection and its batching write API.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      Config
	logger   *logrus.Logger

	mu        sync.RWMutex
	connected bool
}

// Connect pings the server and starts the batching write API. Asynchronous write errors
// are logged.
func Connect(ctx context.Context, cfg Config, logger *logrus.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	defaults.SetDefaults(&cfg)
	if logger == nil {
		logger = logrus.New()
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(cfg.BatchSize).
			SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		logger:    logger,
		connected: true,
	}
	go c.logWriteErrors(c.writeAPI.Errors())

	logger.WithFields(logrus.Fields{
		"url":    cfg.URL,
		"bucket": cfg.Bucket,
	}).Info("InfluxDB connected")
	return c, nil
}

func (c *Client) logWriteErrors(errs <-chan error) {
	for err := range errs {
		c.logger.WithFields(logrus.Fields{
			"bucket": c.cfg.Bucket,
			"error":  err,
		}).Warn("InfluxDB write failed")
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// WritePoint queues p. Points written after Close are dropped.
func (c *Client) WritePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

// Flush blocks until queued points are sent.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close flushes pending points and closes the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		c.writeAPI.Flush()
	}
	c.client.Close()
	return nil
}
