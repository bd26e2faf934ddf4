/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package simulation

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/invernadero/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

// singleRow is one row with one drone and plants at slots 1 and 2.
func singleRow(plan string) *models.Greenhouse {
	return &models.Greenhouse{
		Name:        "Uno",
		Rows:        1,
		SlotsPerRow: 2,
		Plants: []models.Plant{
			{Name: "Tomate", Row: 1, Slot: 1, Liters: 1, Grams: 10},
			{Name: "Chile", Row: 1, Slot: 2, Liters: 2, Grams: 20},
		},
		Drones: []models.Drone{{DroneID: "1", Name: "DR01", Row: 1}},
		Plans:  []models.Plan{{Name: "Dia 1", Sequence: plan}},
	}
}

// twoRows has two drones and three plants per row.
func twoRows(plan string) *models.Greenhouse {
	g := &models.Greenhouse{
		Name:        "Dos",
		Rows:        2,
		SlotsPerRow: 3,
		Drones: []models.Drone{
			{DroneID: "1", Name: "DR01", Row: 1},
			{DroneID: "2", Name: "DR02", Row: 2},
		},
		Plans: []models.Plan{{Name: "Dia 1", Sequence: plan}},
	}
	for row := 1; row <= 2; row++ {
		for slot := 1; slot <= 3; slot++ {
			g.Plants = append(g.Plants, models.Plant{
				Name:   models.SlotRef{Row: row, Slot: slot}.String(),
				Row:    row,
				Slot:   slot,
				Liters: row,
				Grams:  slot * 10,
			})
		}
	}
	return g
}

func TestSimulateSingleRowScenario(t *testing.T) {
	g := singleRow("H1-P2, H1-P1")

	res, err := newTestEngine().Simulate(g, "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	want := []Step{
		{Second: 1, Actions: []Action{{Drone: "DR01", Kind: ActionMoveForward, Label: "Adelante (H1P2)"}}},
		{Second: 2, Actions: []Action{{Drone: "DR01", Kind: ActionWater, Label: "Regar"}}},
		{Second: 3, Actions: []Action{{Drone: "DR01", Kind: ActionMoveBackward, Label: "Atras (H1P1)"}}},
		{Second: 4, Actions: []Action{{Drone: "DR01", Kind: ActionWater, Label: "Regar"}}},
	}
	if !reflect.DeepEqual(res.Timeline, want) {
		t.Fatalf("timeline = %+v\nwant %+v", res.Timeline, want)
	}
	if res.Makespan != 4 {
		t.Fatalf("makespan = %d, want 4", res.Makespan)
	}
	if res.Drones[0].Liters != 3 || res.Drones[0].Grams != 30 {
		t.Fatalf("drone totals = %+v, want 3L/30g", res.Drones[0])
	}
	if res.TotalLiters != 3 || res.TotalGrams != 30 {
		t.Fatalf("totals = %dL/%dg", res.TotalLiters, res.TotalGrams)
	}
	if g.Drones[0].Position != 1 {
		t.Fatalf("final drone position = %d, want 1", g.Drones[0].Position)
	}
}

func TestSimulateDefersSecondDroneByOverlapOnly(t *testing.T) {
	g := twoRows("H1-P3, H2-P3")

	res, err := newTestEngine().Simulate(g, "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	dr1 := res.ActionsFor("DR01")
	dr2 := res.ActionsFor("DR02")

	if last := dr1[len(dr1)-1]; last.Kind != ActionWater || last.Second != 3 {
		t.Fatalf("DR01 last action = %+v, want water at 3", last)
	}

	wantDR2 := []TimedAction{
		{Second: 1, Action: Action{Drone: "DR02", Kind: ActionMoveForward, Label: "Adelante (H2P2)"}},
		{Second: 2, Action: Action{Drone: "DR02", Kind: ActionMoveForward, Label: "Adelante (H2P3)"}},
		{Second: 3, Action: Action{Drone: "DR02", Kind: ActionWait, Label: "Esperar"}},
		{Second: 4, Action: Action{Drone: "DR02", Kind: ActionWater, Label: "Regar"}},
	}
	if !reflect.DeepEqual(dr2, wantDR2) {
		t.Fatalf("DR02 actions = %+v\nwant %+v", dr2, wantDR2)
	}
	if res.Makespan != 4 {
		t.Fatalf("makespan = %d, want 4", res.Makespan)
	}

	// Within second 1 the actions follow plan order, not drone order.
	first := res.Timeline[0]
	if first.Second != 1 || len(first.Actions) != 2 || first.Actions[0].Drone != "DR01" || first.Actions[1].Drone != "DR02" {
		t.Fatalf("second 1 = %+v", first)
	}
}

func TestSimulateKeepsOneClockPerRow(t *testing.T) {
	g := twoRows("H1-P3, H2-P3")
	g.Drones[1].Name = g.Drones[0].Name

	res, err := newTestEngine().Simulate(g, "Dia 1")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Makespan != 4 {
		t.Fatalf("makespan = %d, want 4", res.Makespan)
	}
	if got := res.WateringSeconds(); !reflect.DeepEqual(got, []int{3, 4}) {
		t.Fatalf("watering seconds = %v, want [3 4]", got)
	}
}

func TestSimulateWithinSecondOrderFollowsPlan(t *testing.T) {
	g := twoRows("H2-P2, H1-P2")

	res, err := newTestEngine().Simulate(g, "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	first := res.Timeline[0]
	if first.Actions[0].Drone != "DR02" || first.Actions[1].Drone != "DR01" {
		t.Fatalf("second 1 order = %+v, want DR02 then DR01", first.Actions)
	}
}

func TestSimulatePlanNotFound(t *testing.T) {
	g := singleRow("H1-P1")

	res, err := newTestEngine().Simulate(g, "Dia 9")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("err = %v, want ErrPlanNotFound", err)
	}
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
}

func TestSimulateEmptyAndMalformedPlans(t *testing.T) {
	tests := []struct {
		name    string
		plan    string
		skipped int
	}{
		{name: "empty", plan: "", skipped: 0},
		{name: "whitespace and commas", plan: " , ,", skipped: 0},
		{name: "malformed", plan: "X1, H-P, HaPb", skipped: 3},
		{name: "unassigned row", plan: "H3-P1", skipped: 1},
		{name: "empty slot", plan: "H1-P3", skipped: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestEngine().Simulate(singleRow(tt.plan), "Dia 1")
			if err != nil {
				t.Fatalf("Simulate: %v", err)
			}
			if res.Makespan != 0 {
				t.Fatalf("makespan = %d, want 0", res.Makespan)
			}
			if len(res.Timeline) != 0 {
				t.Fatalf("timeline = %+v, want empty", res.Timeline)
			}
			if res.Skipped != tt.skipped {
				t.Fatalf("skipped = %d, want %d", res.Skipped, tt.skipped)
			}
		})
	}
}

func TestSimulateUnassignedRowDoesNotAffectSchedule(t *testing.T) {
	base, err := newTestEngine().Simulate(singleRow("H1-P2, H1-P1"), "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	withSkip, err := newTestEngine().Simulate(singleRow("H1-P2, H4-P1, H1-P1"), "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if withSkip.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", withSkip.Skipped)
	}
	if withSkip.Makespan != base.Makespan || !reflect.DeepEqual(withSkip.Timeline, base.Timeline) {
		t.Fatalf("unassigned row changed the schedule: %+v vs %+v", withSkip.Timeline, base.Timeline)
	}
}

func TestSimulateNoDrones(t *testing.T) {
	g := singleRow("H1-P1, H1-P2")
	g.Drones = nil

	res, err := newTestEngine().Simulate(g, "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.Makespan != 0 || len(res.Timeline) != 0 || res.Skipped != 2 {
		t.Fatalf("result = %+v, want empty schedule with 2 skipped", res)
	}
}

func TestSimulateIsDeterministicAcrossRuns(t *testing.T) {
	g := twoRows("H1-P3, H2-P2, H2-P3, H1-P1, H2-P1, H1-P3")
	engine := newTestEngine()

	first, err := engine.Simulate(g, "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	second, err := engine.Simulate(g, "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("runs differ:\n%+v\n%+v", first, second)
	}
}

func TestSimulateRevisitDoubleCounts(t *testing.T) {
	res, err := newTestEngine().Simulate(singleRow("H1-P2, H1-P2"), "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.Drones[0].Liters != 4 || res.Drones[0].Grams != 40 {
		t.Fatalf("totals = %+v, want 4L/40g", res.Drones[0])
	}
	// move, water, water
	if res.Makespan != 3 {
		t.Fatalf("makespan = %d, want 3", res.Makespan)
	}
}

func TestSimulateScheduleProperties(t *testing.T) {
	plans := []string{
		"H1-P3, H2-P3",
		"H1-P1, H2-P1, H1-P1, H2-P1",
		"H2-P3, H1-P2, H2-P1, H1-P3, H1-P1, H2-P2, bad, H5-P5",
		"H1-P3, H1-P1, H1-P3, H2-P3, H2-P1",
	}

	for _, plan := range plans {
		t.Run(plan, func(t *testing.T) {
			g := twoRows(plan)
			res, err := newTestEngine().Simulate(g, "Dia 1")
			if err != nil {
				t.Fatalf("Simulate: %v", err)
			}

			// Watering never overlaps.
			seen := make(map[int]bool)
			for _, s := range res.WateringSeconds() {
				if seen[s] {
					t.Fatalf("two drones water at second %d", s)
				}
				seen[s] = true
			}

			// Each drone's seconds are contiguous from 1, at most one action per second.
			last := 0
			for _, d := range g.Drones {
				actions := res.ActionsFor(d.Name)
				for i, a := range actions {
					if a.Second != i+1 {
						t.Fatalf("%s action %d at second %d, want %d", d.Name, i, a.Second, i+1)
					}
				}
				if n := len(actions); n > last {
					last = n
				}
			}
			if res.Makespan != last {
				t.Fatalf("makespan = %d, want %d", res.Makespan, last)
			}

			// Accumulators equal the cost of every watered plant, repeats included.
			wantLiters := map[string]int{}
			wantGrams := map[string]int{}
			for _, entry := range res.Plan {
				ref, ok := models.ParseSlotRef(entry)
				if !ok {
					continue
				}
				d, okD := g.DroneByRow(ref.Row)
				p, okP := g.PlantAt(ref.Row, ref.Slot)
				if !okD || !okP {
					continue
				}
				wantLiters[d.Name] += p.Liters
				wantGrams[d.Name] += p.Grams
			}
			for _, totals := range res.Drones {
				if totals.Liters != wantLiters[totals.Name] || totals.Grams != wantGrams[totals.Name] {
					t.Fatalf("%s totals = %+v, want %dL/%dg", totals.Name, totals, wantLiters[totals.Name], wantGrams[totals.Name])
				}
			}
		})
	}
}

func TestResultUntil(t *testing.T) {
	res, err := newTestEngine().Simulate(singleRow("H1-P2, H1-P1"), "Dia 1")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if got := res.Until(2); len(got) != 2 || got[1].Second != 2 {
		t.Fatalf("Until(2) = %+v", got)
	}
	if got := res.Until(0); len(got) != 4 {
		t.Fatalf("Until(0) len = %d, want 4", len(got))
	}
	if got := res.Until(100); len(got) != 4 {
		t.Fatalf("Until(100) len = %d, want 4", len(got))
	}
}
