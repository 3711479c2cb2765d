// Package health periodically probes the single upstream PostgreSQL
// server this proxy relays to, tracking consecutive-failure state the
// admin API's /healthz endpoint reports from.
package health

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/cloudshield/eqlproxy/internal/metrics"
	"github.com/cloudshield/eqlproxy/internal/wire"
)

// Status is the upstream's current health classification.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// State is the health information the checker tracks for the upstream.
type State struct {
	Status              Status    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Checker periodically probes one upstream address.
type Checker struct {
	mu    sync.RWMutex
	state State

	addr    string
	metrics *metrics.Collector

	interval          time.Duration
	failureThreshold  int
	connectionTimeout time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a checker for the given upstream "host:port".
func NewChecker(addr string, m *metrics.Collector, interval time.Duration, failureThreshold int, connectionTimeout time.Duration) *Checker {
	return &Checker{
		addr:              addr,
		metrics:           m,
		interval:          interval,
		failureThreshold:  failureThreshold,
		connectionTimeout: connectionTimeout,
		stopCh:            make(chan struct{}),
		state:             State{Status: StatusUnknown},
	}
}

// Start begins periodic health checking.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	slog.Info("health checker started", "addr", c.addr, "interval", c.interval)
}

// Stop stops the health checker. Safe to call multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	slog.Info("health checker stopped")
}

func (c *Checker) run() {
	c.check()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.check()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Checker) check() {
	healthy, err := c.probe()
	c.updateStatus(healthy, err)
}

// probe opens a connection to the upstream and sends a startup message
// identifying as a health-check role, then checks that the server
// responds with any recognizable message (an auth challenge or an
// ErrorResponse both prove the protocol state machine is alive).
func (c *Checker) probe() (bool, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.connectionTimeout)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.connectionTimeout))

	frontend := wire.NewUpstreamCodec(conn, conn)
	startup := &pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      map[string]string{"user": "eqlproxy_healthcheck"},
	}
	if err := frontend.Send(startup); err != nil {
		return false, fmt.Errorf("sending startup message: %w", err)
	}

	msg, err := frontend.Receive()
	if err != nil {
		return false, fmt.Errorf("reading response: %w", err)
	}
	switch msg.(type) {
	case *pgproto3.AuthenticationOk,
		*pgproto3.AuthenticationCleartextPassword,
		*pgproto3.AuthenticationMD5Password,
		*pgproto3.AuthenticationSASL,
		*pgproto3.ErrorResponse:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected response %T", msg)
	}
}

func (c *Checker) updateStatus(healthy bool, probeErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.LastCheck = time.Now()
	if healthy {
		if c.state.ConsecutiveFailures > 0 {
			slog.Info("upstream recovered", "addr", c.addr, "failures", c.state.ConsecutiveFailures)
		}
		c.state.Status = StatusHealthy
		c.state.ConsecutiveFailures = 0
		c.state.LastError = ""
	} else {
		c.state.ConsecutiveFailures++
		if probeErr != nil {
			c.state.LastError = probeErr.Error()
		}
		if c.state.ConsecutiveFailures >= c.failureThreshold {
			if c.state.Status != StatusUnhealthy {
				slog.Warn("upstream marked unhealthy", "addr", c.addr, "failures", c.state.ConsecutiveFailures, "error", c.state.LastError)
			}
			c.state.Status = StatusUnhealthy
		}
	}

	if c.metrics != nil {
		c.metrics.SetUpstreamHealthy(c.state.Status == StatusHealthy)
	}
}

// IsHealthy reports whether the upstream is currently healthy (unknown
// counts as healthy — no failed probe has been observed yet).
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Status != StatusUnhealthy
}

// GetState returns a snapshot of the checker's current state.
func (c *Checker) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
