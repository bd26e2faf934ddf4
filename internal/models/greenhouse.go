/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidGreenhouse is returned by Validate when a greenhouse breaks the
// one-row-per-drone, one-drone-per-row or one-plant-per-slot rules.
var ErrInvalidGreenhouse = errors.New("invalid greenhouse")

// Greenhouse ("invernadero") owns rows of planting slots, the plants in them,
// the drones assigned to the rows and the named irrigation plans.
type Greenhouse struct {
	ID          string `gorm:"size:36;primaryKey"`
	UploadID    string `gorm:"size:36;index"`
	Name        string `gorm:"index"`
	Rows        int
	SlotsPerRow int
	Plants      []Plant `gorm:"foreignKey:GreenhouseID;constraint:OnDelete:CASCADE"`
	Drones      []Drone `gorm:"foreignKey:GreenhouseID;constraint:OnDelete:CASCADE"`
	Plans       []Plan  `gorm:"foreignKey:GreenhouseID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Plant occupies one slot of one row. Immutable after load.
type Plant struct {
	ID           string `gorm:"size:36;primaryKey"`
	GreenhouseID string `gorm:"size:36;index"`
	Name         string
	Row          int `gorm:"column:row_no"`
	Slot         int `gorm:"column:slot_no"`
	Liters       int
	Grams        int
}

// Drone waters the plants of the single row it is assigned to.
//
// Position, Liters and Grams are simulation state and are never persisted.
type Drone struct {
	ID           string `gorm:"size:36;primaryKey"`
	GreenhouseID string `gorm:"size:36;index"`
	DroneID      string `gorm:"type:varchar(64)"`
	Name         string
	Row          int `gorm:"column:row_no"`
	Sequence     int

	Position int `gorm:"-" json:"-"`
	Liters   int `gorm:"-" json:"-"`
	Grams    int `gorm:"-" json:"-"`
}

// Plan is an ordered list of slot references to water.
type Plan struct {
	ID           string `gorm:"size:36;primaryKey"`
	GreenhouseID string `gorm:"size:36;index"`
	Name         string
	Sequence     string `gorm:"type:text"`
	Position     int
}

// Entries returns the plan tokens in order. Empty tokens are dropped; the
// remaining ones are returned verbatim (trimmed) so malformed references stay
// visible to the engine, which skips them.
func (p *Plan) Entries() []string {
	if p == nil || strings.TrimSpace(p.Sequence) == "" {
		return nil
	}
	parts := strings.Split(p.Sequence, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SetEntries stores entries as the comma separated plan text.
func (p *Plan) SetEntries(entries []string) {
	p.Sequence = strings.Join(entries, ", ")
}

// DroneByRow returns the drone assigned to row.
func (g *Greenhouse) DroneByRow(row int) (*Drone, bool) {
	for i := range g.Drones {
		if g.Drones[i].Row == row {
			return &g.Drones[i], true
		}
	}
	return nil, false
}

// PlantAt returns the plant at (row, slot).
func (g *Greenhouse) PlantAt(row, slot int) (*Plant, bool) {
	for i := range g.Plants {
		if g.Plants[i].Row == row && g.Plants[i].Slot == slot {
			return &g.Plants[i], true
		}
	}
	return nil, false
}

// PlanByName returns the named plan.
func (g *Greenhouse) PlanByName(name string) (*Plan, bool) {
	for i := range g.Plans {
		if g.Plans[i].Name == name {
			return &g.Plans[i], true
		}
	}
	return nil, false
}

// ResetDrones puts every drone back at slot 1 with empty accumulators.
func (g *Greenhouse) ResetDrones() {
	for i := range g.Drones {
		g.Drones[i].Position = 1
		g.Drones[i].Liters = 0
		g.Drones[i].Grams = 0
	}
}

// Validate checks the structural invariants of a loaded greenhouse.
// A zero Rows or SlotsPerRow disables the corresponding range check.
func (g *Greenhouse) Validate() error {
	rows := make(map[int]string, len(g.Drones))
	ids := make(map[string]int, len(g.Drones))
	names := make(map[string]int, len(g.Drones))
	for _, d := range g.Drones {
		if d.Row < 1 || (g.Rows > 0 && d.Row > g.Rows) {
			return fmt.Errorf("%w: drone %q assigned to row %d outside 1..%d", ErrInvalidGreenhouse, d.Name, d.Row, g.Rows)
		}
		if other, ok := rows[d.Row]; ok {
			return fmt.Errorf("%w: row %d assigned to both %q and %q", ErrInvalidGreenhouse, d.Row, other, d.Name)
		}
		if d.DroneID != "" {
			if row, ok := ids[d.DroneID]; ok {
				return fmt.Errorf("%w: drone id %q assigned to rows %d and %d", ErrInvalidGreenhouse, d.DroneID, row, d.Row)
			}
			ids[d.DroneID] = d.Row
		}
		if row, ok := names[d.Name]; ok {
			return fmt.Errorf("%w: drone name %q used on rows %d and %d", ErrInvalidGreenhouse, d.Name, row, d.Row)
		}
		rows[d.Row] = d.Name
		names[d.Name] = d.Row
	}

	slots := make(map[SlotRef]string, len(g.Plants))
	for _, p := range g.Plants {
		ref := SlotRef{Row: p.Row, Slot: p.Slot}
		if p.Row < 1 || p.Slot < 1 {
			return fmt.Errorf("%w: plant %q at invalid location %s", ErrInvalidGreenhouse, p.Name, ref)
		}
		if g.Rows > 0 && p.Row > g.Rows {
			return fmt.Errorf("%w: plant %q row %d exceeds %d rows", ErrInvalidGreenhouse, p.Name, p.Row, g.Rows)
		}
		if g.SlotsPerRow > 0 && p.Slot > g.SlotsPerRow {
			return fmt.Errorf("%w: plant %q slot %d exceeds %d slots per row", ErrInvalidGreenhouse, p.Name, p.Slot, g.SlotsPerRow)
		}
		if other, ok := slots[ref]; ok {
			return fmt.Errorf("%w: %s holds both %q and %q", ErrInvalidGreenhouse, ref, other, p.Name)
		}
		slots[ref] = p.Name
	}
	return nil
}
