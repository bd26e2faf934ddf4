/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package loader

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/invernadero/internal/models"
)

// yamlDocument mirrors the XML layout with English keys:
//
//	drones:
//	  - {id: "1", name: DR01}
//	greenhouses:
//	  - name: Norte
//	    rows: 2
//	    slotsPerRow: 3
//	    plants:
//	      - {row: 1, slot: 1, liters: 1, grams: 10, name: Tomate}
//	    assignments:
//	      - {drone: "1", row: 1}
//	    plans:
//	      - {name: Dia 1, sequence: "H1-P2, H1-P1"}
type yamlDocument struct {
	Drones      []yamlDrone      `yaml:"drones"`
	Greenhouses []yamlGreenhouse `yaml:"greenhouses"`
}

type yamlDrone struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type yamlGreenhouse struct {
	Name        string           `yaml:"name"`
	Rows        int              `yaml:"rows"`
	SlotsPerRow int              `yaml:"slotsPerRow"`
	Plants      []yamlPlant      `yaml:"plants"`
	Assignments []yamlAssignment `yaml:"assignments"`
	Plans       []yamlPlan       `yaml:"plans"`
}

type yamlPlant struct {
	Name   string `yaml:"name"`
	Row    int    `yaml:"row"`
	Slot   int    `yaml:"slot"`
	Liters int    `yaml:"liters"`
	Grams  int    `yaml:"grams"`
}

type yamlAssignment struct {
	Drone string `yaml:"drone"`
	Row   int    `yaml:"row"`
}

// yamlPlan accepts either comma separated text or a list of entries.
type yamlPlan struct {
	Name     string   `yaml:"name"`
	Sequence string   `yaml:"sequence"`
	Entries  []string `yaml:"entries"`
}

// LoadYAML decodes the YAML greenhouse layout.
func LoadYAML(r io.Reader) ([]*models.Greenhouse, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalidDocument, err)
	}

	declared := make([]droneDecl, 0, len(doc.Drones))
	for _, d := range doc.Drones {
		declared = append(declared, droneDecl{ID: strings.TrimSpace(d.ID), Name: strings.TrimSpace(d.Name)})
	}

	out := make([]*models.Greenhouse, 0, len(doc.Greenhouses))
	names := make(map[string]bool, len(doc.Greenhouses))
	for _, yg := range doc.Greenhouses {
		b := newBuilder(declared, yg.Name, yg.Rows, yg.SlotsPerRow)
		for _, p := range yg.Plants {
			b.plant(p.Name, p.Row, p.Slot, p.Liters, p.Grams)
		}
		for _, a := range yg.Assignments {
			b.assign(a.Drone, a.Row)
		}
		for _, p := range yg.Plans {
			entries := p.Entries
			if len(entries) == 0 {
				entries = splitPlan(p.Sequence)
			}
			b.plan(p.Name, entries)
		}

		g, err := b.build()
		if err != nil {
			return nil, err
		}
		if names[g.Name] {
			return nil, fmt.Errorf("%w: greenhouse %q declared twice", ErrInvalidDocument, g.Name)
		}
		names[g.Name] = true
		out = append(out, g)
	}
	return out, nil
}
