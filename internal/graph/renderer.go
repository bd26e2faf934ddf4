/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package graph

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// RendererConfig tunes the circuit breaker in front of the Graphviz binary.
type RendererConfig struct {
	DotBin      string
	MaxFailures uint32        // consecutive failures that open the breaker
	OpenFor     time.Duration // how long the breaker stays open
}

// DefaultRendererConfig returns the defaults used by the server.
func DefaultRendererConfig(dotBin string) RendererConfig {
	return RendererConfig{
		DotBin:      dotBin,
		MaxFailures: 3,
		OpenFor:     30 * time.Second,
	}
}

// Renderer runs Render behind a circuit breaker so a missing or broken
// Graphviz install is not re-executed on every request.
type Renderer struct {
	dotBin string
	cb     *gobreaker.CircuitBreaker
}

// NewRenderer creates a renderer.
func NewRenderer(cfg RendererConfig, logger zerolog.Logger) *Renderer {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	logger = logger.With().Str("component", "graph").Logger()
	return &Renderer{
		dotBin: cfg.DotBin,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "graphviz",
			Timeout: cfg.OpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= cfg.MaxFailures
			},
			// Bad formats are caller errors, not Graphviz failures.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrUnsupportedFormat)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("graphviz breaker state changed")
			},
		}),
	}
}

// Render renders src in format. gobreaker.ErrOpenState is returned while
// the breaker is open.
func (r *Renderer) Render(ctx context.Context, src []byte, format string) ([]byte, error) {
	out, err := r.cb.Execute(func() (any, error) {
		return Render(ctx, r.dotBin, src, format)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// State reports the breaker state.
func (r *Renderer) State() gobreaker.State {
	return r.cb.State()
}
