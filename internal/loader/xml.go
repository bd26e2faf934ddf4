/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package loader

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/friendsincode/invernadero/internal/models"
)

type xmlDocument struct {
	XMLName     xml.Name        `xml:"configuracion"`
	Drones      []xmlDrone      `xml:"listaDrones>dron"`
	Greenhouses []xmlGreenhouse `xml:"listaInvernaderos>invernadero"`
}

type xmlDrone struct {
	ID     string `xml:"id,attr"`
	Name   string `xml:"nombre,attr"`
	Hilera string `xml:"hilera,attr"`
}

type xmlGreenhouse struct {
	Name        string     `xml:"nombre,attr"`
	Rows        string     `xml:"numeroHileras"`
	SlotsPerRow string     `xml:"plantasXhilera"`
	Plants      []xmlPlant `xml:"listaPlantas>planta"`
	Assignments []xmlDrone `xml:"asignacionDrones>dron"`
	Plans       []xmlPlan  `xml:"planesRiego>plan"`
}

type xmlPlant struct {
	Row    string `xml:"hilera,attr"`
	Slot   string `xml:"posicion,attr"`
	Liters string `xml:"litrosAgua,attr"`
	Grams  string `xml:"gramosFertilizante,attr"`
	Name   string `xml:",chardata"`
}

type xmlPlan struct {
	Name string `xml:"nombre,attr"`
	Text string `xml:",chardata"`
}

// LoadXML decodes a "configuracion" document.
func LoadXML(r io.Reader) ([]*models.Greenhouse, error) {
	var doc xmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode xml: %w", ErrInvalidDocument, err)
	}

	declared := make([]droneDecl, 0, len(doc.Drones))
	for _, d := range doc.Drones {
		declared = append(declared, droneDecl{ID: strings.TrimSpace(d.ID), Name: strings.TrimSpace(d.Name)})
	}

	out := make([]*models.Greenhouse, 0, len(doc.Greenhouses))
	names := make(map[string]bool, len(doc.Greenhouses))
	for _, xg := range doc.Greenhouses {
		g, err := buildXMLGreenhouse(declared, xg)
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

func buildXMLGreenhouse(declared []droneDecl, xg xmlGreenhouse) (*models.Greenhouse, error) {
	p := intParser{context: "greenhouse " + strconv.Quote(strings.TrimSpace(xg.Name))}

	rows := p.optional("numeroHileras", xg.Rows)
	slots := p.optional("plantasXhilera", xg.SlotsPerRow)
	b := newBuilder(declared, xg.Name, rows, slots)

	for _, xp := range xg.Plants {
		b.plant(xp.Name,
			p.required("hilera", xp.Row),
			p.required("posicion", xp.Slot),
			p.required("litrosAgua", xp.Liters),
			p.required("gramosFertilizante", xp.Grams),
		)
	}
	for _, xa := range xg.Assignments {
		b.assign(xa.ID, p.required("hilera", xa.Hilera))
	}
	for _, xp := range xg.Plans {
		b.plan(xp.Name, splitPlan(xp.Text))
	}

	if p.err != nil {
		return nil, p.err
	}
	return b.build()
}

// intParser parses integer fields and keeps the first failure.
type intParser struct {
	context string
	err     error
}

func (p *intParser) required(field, raw string) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.err = fmt.Errorf("%w: %s: %s=%q is not an integer", ErrInvalidDocument, p.context, field, raw)
		return 0
	}
	return v
}

// optional treats a missing element as zero.
func (p *intParser) optional(field, raw string) int {
	if strings.TrimSpace(raw) == "" {
		return 0
	}
	return p.required(field, raw)
}
