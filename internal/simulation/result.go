/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package simulation

import (
	"fmt"
	"sort"
)

// ActionKind classifies what a drone does during one second.
type ActionKind string

const (
	ActionMoveForward  ActionKind = "move_forward"
	ActionMoveBackward ActionKind = "move_backward"
	ActionWait         ActionKind = "wait"
	ActionWater        ActionKind = "water"
)

// Display labels used in reports.
const (
	labelWait  = "Esperar"
	labelWater = "Regar"
)

// Action is one drone's activity during one second.
type Action struct {
	Drone string     `json:"drone"`
	Kind  ActionKind `json:"kind"`
	Label string     `json:"label"`
}

// Step groups the actions emitted for one simulated second, in emission order.
type Step struct {
	Second  int      `json:"second"`
	Actions []Action `json:"actions"`
}

// TimedAction is an Action with its second, used for per-drone views.
type TimedAction struct {
	Second int `json:"second"`
	Action
}

// DroneTotals is the water and fertilizer a drone delivered during a run.
type DroneTotals struct {
	Name   string `json:"name"`
	Row    int    `json:"row"`
	Liters int    `json:"liters"`
	Grams  int    `json:"grams"`
}

// Result is the immutable outcome of one simulation run.
type Result struct {
	GreenhouseName string        `json:"greenhouse"`
	PlanName       string        `json:"plan"`
	Plan           []string      `json:"plan_entries"`
	Makespan       int           `json:"makespan"`
	Drones         []DroneTotals `json:"drones"`
	TotalLiters    int           `json:"total_liters"`
	TotalGrams     int           `json:"total_grams"`
	Timeline       []Step        `json:"timeline"`
	Skipped        int           `json:"skipped"`
}

// Until returns the steps up to and including second. A non-positive second
// returns the whole timeline.
func (r *Result) Until(second int) []Step {
	if second <= 0 {
		return r.Timeline
	}
	idx := sort.Search(len(r.Timeline), func(i int) bool {
		return r.Timeline[i].Second > second
	})
	return r.Timeline[:idx]
}

// ActionsFor returns the timeline of a single drone.
func (r *Result) ActionsFor(drone string) []TimedAction {
	var out []TimedAction
	for _, step := range r.Timeline {
		for _, a := range step.Actions {
			if a.Drone == drone {
				out = append(out, TimedAction{Second: step.Second, Action: a})
			}
		}
	}
	return out
}

// WateringSeconds lists every second in which some drone watered, in order.
func (r *Result) WateringSeconds() []int {
	var out []int
	for _, step := range r.Timeline {
		for _, a := range step.Actions {
			if a.Kind == ActionWater {
				out = append(out, step.Second)
			}
		}
	}
	return out
}

// timeline accumulates actions per second while the engine runs.
type timeline struct {
	bySecond map[int][]Action
}

func newTimeline() *timeline {
	return &timeline{bySecond: make(map[int][]Action)}
}

func (t *timeline) add(second int, drone string, kind ActionKind, label string) {
	t.bySecond[second] = append(t.bySecond[second], Action{Drone: drone, Kind: kind, Label: label})
}

// steps flattens the map ascending by second, keeping insertion order within
// each second.
func (t *timeline) steps() []Step {
	seconds := make([]int, 0, len(t.bySecond))
	for s := range t.bySecond {
		seconds = append(seconds, s)
	}
	sort.Ints(seconds)

	out := make([]Step, 0, len(seconds))
	for _, s := range seconds {
		out = append(out, Step{Second: s, Actions: t.bySecond[s]})
	}
	return out
}

func moveLabel(kind ActionKind, row, slot int) string {
	if kind == ActionMoveForward {
		return fmt.Sprintf("Adelante (H%dP%d)", row, slot)
	}
	return fmt.Sprintf("Atras (H%dP%d)", row, slot)
}
