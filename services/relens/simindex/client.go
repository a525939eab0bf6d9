// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open and
	// requests are being shed.
	ErrCircuitOpen = errors.New("circuit breaker is open, index requests blocked")

	// ErrClientClosed is returned when operations are called on a closed
	// client.
	ErrClientClosed = errors.New("similarity index client is closed")
)

// ConnectionState represents the current state of the index connection.
type ConnectionState int32

const (
	// StateConnected indicates normal operation.
	StateConnected ConnectionState = iota
	// StateDegraded indicates the backend is unavailable but the client
	// is functional and will keep probing.
	StateDegraded
	// StateCircuitOpen indicates the circuit breaker is open.
	StateCircuitOpen
	// StateHalfOpen indicates the breaker is testing with a single request.
	StateHalfOpen
)

// String returns the string representation of ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateCircuitOpen:
		return "circuit_open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ClientConfig configures the resilient index client.
type ClientConfig struct {
	// URL is the Weaviate server URL (e.g., "http://localhost:8080").
	URL string

	// RetryAttempts is the number of retry attempts for failed requests.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration between retries.
	// Default: 100ms
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff.
	// Default: 5s
	MaxRetryBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0).
	// Default: 0.25 (±25%)
	RetryJitter float64

	// CircuitThreshold is the number of failures before opening circuit.
	// Default: 5
	CircuitThreshold int

	// CircuitWindow is the sliding window for counting failures.
	// Default: 30s
	CircuitWindow time.Duration

	// CircuitCooldown is how long the circuit stays open before half-opening.
	// Default: 30s
	CircuitCooldown time.Duration

	// AllowStartDegraded allows constructing the client even if the
	// backend is unavailable. Default: false
	AllowStartDegraded bool

	// Logger for client operations. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults for production use.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RetryAttempts:    3,
		RetryBackoff:     100 * time.Millisecond,
		MaxRetryBackoff:  5 * time.Second,
		RetryJitter:      0.25,
		CircuitThreshold: 5,
		CircuitWindow:    30 * time.Second,
		CircuitCooldown:  30 * time.Second,
		Logger:           slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry_attempts must be non-negative")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.New("retry_jitter must be between 0 and 1")
	}
	if c.CircuitThreshold < 1 {
		return errors.New("circuit_threshold must be at least 1")
	}
	if c.CircuitWindow <= 0 {
		return errors.New("circuit_window must be positive")
	}
	return nil
}

func (c *ClientConfig) applyDefaults() {
	defaults := DefaultClientConfig()
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = defaults.RetryJitter
	}
	if c.CircuitThreshold == 0 {
		c.CircuitThreshold = defaults.CircuitThreshold
	}
	if c.CircuitWindow == 0 {
		c.CircuitWindow = defaults.CircuitWindow
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = defaults.CircuitCooldown
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// ResilientClient wraps the Weaviate client with a circuit breaker and
// retry with jittered exponential backoff.
//
// # Thread Safety
//
// Safe for concurrent use from multiple goroutines.
type ResilientClient struct {
	client *weaviate.Client
	config ClientConfig
	logger *slog.Logger

	state           atomic.Int32
	circuitOpenTime atomic.Int64 // unix nanos when circuit opened
	closed          atomic.Bool
	halfOpenProbe   atomic.Bool

	// Circuit breaker sliding window of failure timestamps.
	failMu   sync.Mutex
	failures []time.Time
}

// NewResilientClient creates a resilient client connected to the given
// Weaviate URL. When AllowStartDegraded is false, an unreachable backend
// is a construction error.
func NewResilientClient(ctx context.Context, cfg ClientConfig) (*ResilientClient, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("%w: malformed url %q", ErrInvalidInput, cfg.URL)
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "http"
	}

	inner, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}

	rc := &ResilientClient{
		client: inner,
		config: cfg,
		logger: cfg.Logger,
	}
	rc.state.Store(int32(StateConnected))

	ready, err := inner.Misc().ReadyChecker().Do(ctx)
	if err != nil || !ready {
		if !cfg.AllowStartDegraded {
			return nil, fmt.Errorf("%w: backend not ready at %s", ErrIndexUnavailable, cfg.URL)
		}
		rc.transitionState(StateDegraded)
		rc.logger.Warn("similarity index starting degraded", "url", cfg.URL)
	}

	return rc, nil
}

// State returns the current connection state.
func (rc *ResilientClient) State() ConnectionState {
	return ConnectionState(rc.state.Load())
}

// Close marks the client closed. Further Execute calls fail.
func (rc *ResilientClient) Close() error {
	rc.closed.Store(true)
	return nil
}

// Execute runs fn through the circuit breaker and retry loop. fn receives
// the raw Weaviate client and should perform exactly one logical operation.
func (rc *ResilientClient) Execute(ctx context.Context, op string, fn func(*weaviate.Client) error) error {
	if rc.closed.Load() {
		return ErrClientClosed
	}

	ctx, span := tracer.Start(ctx, "simindex."+op)
	defer span.End()
	span.SetAttributes(attribute.String("simindex.state", rc.State().String()))

	switch rc.State() {
	case StateCircuitOpen:
		opened := time.Unix(0, rc.circuitOpenTime.Load())
		if time.Since(opened) < rc.config.CircuitCooldown {
			span.SetStatus(codes.Error, ErrCircuitOpen.Error())
			return ErrCircuitOpen
		}
		// Cooldown expired: allow one probe through.
		if !rc.halfOpenProbe.CompareAndSwap(false, true) {
			span.SetStatus(codes.Error, ErrCircuitOpen.Error())
			return ErrCircuitOpen
		}
		rc.transitionState(StateHalfOpen)
		defer rc.halfOpenProbe.Store(false)
	case StateHalfOpen:
		// A probe is already in flight.
		span.SetStatus(codes.Error, ErrCircuitOpen.Error())
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= rc.config.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if attempt > 0 {
			backoff := calculateBackoff(attempt, rc.config.RetryBackoff, rc.config.MaxRetryBackoff, rc.config.RetryJitter)
			select {
			case <-ctx.Done():
				span.SetStatus(codes.Error, ctx.Err().Error())
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn(rc.client)
		if lastErr == nil {
			rc.recordSuccess()
			return nil
		}
		rc.logger.Debug("similarity index operation failed",
			"op", op,
			"attempt", attempt+1,
			"error", lastErr)
	}

	rc.recordFailure()
	span.SetStatus(codes.Error, lastErr.Error())
	return fmt.Errorf("%w: %s: %v", ErrIndexUnavailable, op, lastErr)
}

// recordSuccess resets the failure window and closes the circuit.
func (rc *ResilientClient) recordSuccess() {
	rc.failMu.Lock()
	rc.failures = rc.failures[:0]
	rc.failMu.Unlock()
	if rc.State() != StateConnected {
		rc.transitionState(StateConnected)
	}
}

// recordFailure appends to the sliding window and opens the circuit when
// the threshold is crossed.
func (rc *ResilientClient) recordFailure() {
	now := time.Now()
	cutoff := now.Add(-rc.config.CircuitWindow)

	rc.failMu.Lock()
	kept := rc.failures[:0]
	for _, t := range rc.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rc.failures = append(kept, now)
	count := len(rc.failures)
	rc.failMu.Unlock()

	if count >= rc.config.CircuitThreshold {
		rc.circuitOpenTime.Store(now.UnixNano())
		rc.transitionState(StateCircuitOpen)
		return
	}
	if rc.State() == StateHalfOpen {
		// Probe failed, back to open with a fresh cooldown.
		rc.circuitOpenTime.Store(now.UnixNano())
		rc.transitionState(StateCircuitOpen)
		return
	}
	if rc.State() == StateConnected {
		rc.transitionState(StateDegraded)
	}
}

func (rc *ResilientClient) transitionState(to ConnectionState) {
	from := ConnectionState(rc.state.Swap(int32(to)))
	if from != to {
		rc.logger.Info("similarity index state changed",
			"from", from.String(),
			"to", to.String())
	}
}

// calculateBackoff returns the jittered exponential backoff for an attempt
// (1-based).
func calculateBackoff(attempt int, initial, max time.Duration, jitter float64) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= max {
			backoff = max
			break
		}
	}
	if backoff > max {
		backoff = max
	}
	if jitter > 0 {
		delta := float64(backoff) * jitter
		backoff = time.Duration(float64(backoff) - delta + rand.Float64()*2*delta)
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}
