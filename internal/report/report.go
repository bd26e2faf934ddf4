/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package report renders simulation results as the "datosSalida" XML
// document or as JSON.
package report

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/friendsincode/invernadero/internal/simulation"
)

type salida struct {
	XMLName     xml.Name     `xml:"datosSalida"`
	Greenhouses []greenhouse `xml:"listaInvernaderos>invernadero"`
}

type greenhouse struct {
	Name  string `xml:"nombre,attr"`
	Plans []plan `xml:"listaPlanes>plan"`
}

type plan struct {
	Name        string       `xml:"nombre,attr"`
	Makespan    int          `xml:"tiempoOptimoSegundos"`
	Efficiency  []droneTotal `xml:"eficienciaDronesRegadores>dron"`
	Liters      int          `xml:"aguaRequeridaLitros"`
	Grams       int          `xml:"fertilizanteRequeridoGramos"`
	Instruction []second     `xml:"instrucciones>tiempo"`
}

type droneTotal struct {
	Name   string `xml:"nombre,attr"`
	Liters string `xml:"litrosAgua,attr"`
	Grams  string `xml:"gramosFertilizante,attr"`
}

type second struct {
	Seconds int           `xml:"segundos,attr"`
	Actions []droneAction `xml:"dron"`
}

type droneAction struct {
	Name   string `xml:"nombre,attr"`
	Action string `xml:"accion,attr"`
}

// WriteXML writes one salida document covering every result. Plans are
// grouped under their greenhouse in first-seen order.
func WriteXML(w io.Writer, results ...*simulation.Result) error {
	doc := build(results)

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode salida: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush salida: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteJSON writes the results as an indented JSON array.
func WriteJSON(w io.Writer, results ...*simulation.Result) error {
	if results == nil {
		results = []*simulation.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

func build(results []*simulation.Result) salida {
	var doc salida
	index := make(map[string]int)
	for _, res := range results {
		if res == nil {
			continue
		}
		i, ok := index[res.GreenhouseName]
		if !ok {
			i = len(doc.Greenhouses)
			index[res.GreenhouseName] = i
			doc.Greenhouses = append(doc.Greenhouses, greenhouse{Name: res.GreenhouseName})
		}
		doc.Greenhouses[i].Plans = append(doc.Greenhouses[i].Plans, planFor(res))
	}
	return doc
}

func planFor(res *simulation.Result) plan {
	p := plan{
		Name:     res.PlanName,
		Makespan: res.Makespan,
		Liters:   res.TotalLiters,
		Grams:    res.TotalGrams,
	}
	for _, d := range res.Drones {
		p.Efficiency = append(p.Efficiency, droneTotal{
			Name:   d.Name,
			Liters: strconv.Itoa(d.Liters),
			Grams:  strconv.Itoa(d.Grams),
		})
	}
	for _, step := range res.Timeline {
		s := second{Seconds: step.Second}
		for _, a := range step.Actions {
			s.Actions = append(s.Actions, droneAction{Name: a.Drone, Action: a.Label})
		}
		p.Instruction = append(p.Instruction, s)
	}
	return p
}
