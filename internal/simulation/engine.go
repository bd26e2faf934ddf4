/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package simulation computes the second-by-second watering schedule of a
// greenhouse drone fleet executing an ordered irrigation plan.
//
// Drones move one slot per second along their row and take one second to
// water. A single watering resource is shared by the whole greenhouse, so at
// most one drone waters in any given second. Plan entries are processed
// strictly in order.
package simulation

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/invernadero/internal/models"
	"github.com/friendsincode/invernadero/internal/telemetry"
)

// ErrPlanNotFound is returned when the requested plan does not exist on the
// greenhouse.
var ErrPlanNotFound = errors.New("plan not found")

// Engine runs simulations. It keeps no state between runs; the only state
// a run touches is the drone simulation fields of the greenhouse it is given,
// so callers must not run the same greenhouse concurrently.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a simulation engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "simulation").Logger()}
}

// Simulate executes the named plan on g and returns the computed schedule.
func (e *Engine) Simulate(g *models.Greenhouse, planName string) (*Result, error) {
	plan, ok := g.PlanByName(planName)
	if !ok {
		telemetry.SimulationsTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: %q in greenhouse %q", ErrPlanNotFound, planName, g.Name)
	}

	g.ResetDrones()

	entries := plan.Entries()
	// Drone state is keyed by row: each row has at most one drone.
	availableAt := make(map[int]int, len(g.Drones))
	for _, d := range g.Drones {
		if d.Row > 0 {
			availableAt[d.Row] = 1
		}
	}
	worked := make(map[int]bool, len(g.Drones))
	waterFreeAt := 0
	tl := newTimeline()
	skipped := 0

	for _, entry := range entries {
		ref, ok := models.ParseSlotRef(entry)
		if !ok {
			skipped++
			e.logger.Debug().Str("plan", planName).Str("entry", entry).Msg("skipping malformed plan entry")
			continue
		}
		drone, hasDrone := g.DroneByRow(ref.Row)
		plant, hasPlant := g.PlantAt(ref.Row, ref.Slot)
		if !hasDrone || !hasPlant {
			skipped++
			e.logger.Debug().
				Str("plan", planName).
				Str("entry", entry).
				Bool("drone", hasDrone).
				Bool("plant", hasPlant).
				Msg("skipping unresolvable plan entry")
			continue
		}

		now := availableAt[drone.Row]
		if ref.Slot != drone.Position {
			kind, step := ActionMoveForward, 1
			if ref.Slot < drone.Position {
				kind, step = ActionMoveBackward, -1
			}
			for p := drone.Position + step; ; p += step {
				tl.add(now, drone.Name, kind, moveLabel(kind, ref.Row, p))
				now++
				if p == ref.Slot {
					break
				}
			}
			drone.Position = ref.Slot
		}

		start := max(now, waterFreeAt)
		for t := now; t < start; t++ {
			tl.add(t, drone.Name, ActionWait, labelWait)
		}
		tl.add(start, drone.Name, ActionWater, labelWater)

		drone.Liters += plant.Liters
		drone.Grams += plant.Grams
		availableAt[drone.Row] = start + 1
		waterFreeAt = start + 1
		worked[drone.Row] = true
	}

	// Makespan is the last occupied second: availableAt points one past it.
	makespan := 0
	for row := range worked {
		makespan = max(makespan, availableAt[row]-1)
	}

	res := assemble(g, planName, entries, makespan, tl, skipped)

	telemetry.SimulationsTotal.WithLabelValues("ok").Inc()
	telemetry.SimulationMakespan.Observe(float64(res.Makespan))
	telemetry.PlanEntriesSkipped.Add(float64(skipped))

	e.logger.Info().
		Str("greenhouse", g.Name).
		Str("plan", planName).
		Int("entries", len(entries)).
		Int("skipped", skipped).
		Int("makespan", res.Makespan).
		Msg("simulation completed")

	return res, nil
}

// assemble snapshots the final drone accumulators and the flattened timeline.
func assemble(g *models.Greenhouse, planName string, entries []string, makespan int, tl *timeline, skipped int) *Result {
	res := &Result{
		GreenhouseName: g.Name,
		PlanName:       planName,
		Plan:           append([]string(nil), entries...),
		Makespan:       makespan,
		Drones:         make([]DroneTotals, 0, len(g.Drones)),
		Timeline:       tl.steps(),
		Skipped:        skipped,
	}
	for _, d := range g.Drones {
		res.Drones = append(res.Drones, DroneTotals{
			Name:   d.Name,
			Row:    d.Row,
			Liters: d.Liters,
			Grams:  d.Grams,
		})
		res.TotalLiters += d.Liters
		res.TotalGrams += d.Grams
	}
	return res
}
