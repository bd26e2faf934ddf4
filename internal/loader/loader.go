/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package loader reads greenhouse configuration documents into models.
//
// Two formats are accepted: the "configuracion" XML document and an
// equivalent YAML layout. Drones are declared once per document and copied
// into every greenhouse that assigns them to a row.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/friendsincode/invernadero/internal/models"
)

// ErrInvalidDocument wraps every parse or validation failure.
var ErrInvalidDocument = errors.New("invalid greenhouse document")

// ErrUnsupportedFormat is returned by LoadFile for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Format identifies a document encoding.
type Format string

const (
	FormatXML  Format = "xml"
	FormatYAML Format = "yaml"
)

// FormatFor maps a filename to its document format.
func FormatFor(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xml":
		return FormatXML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Load decodes r in the given format.
func Load(format Format, r io.Reader) ([]*models.Greenhouse, error) {
	switch format {
	case FormatXML:
		return LoadXML(r)
	case FormatYAML:
		return LoadYAML(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// LoadFile opens path and decodes it according to its extension.
func LoadFile(path string) ([]*models.Greenhouse, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Load(format, f)
}

// droneDecl is a document level drone declaration.
type droneDecl struct {
	ID   string
	Name string
}

// builder accumulates one greenhouse and resolves drone assignments against
// the document's declarations.
type builder struct {
	declared []droneDecl
	g        *models.Greenhouse
}

func newBuilder(declared []droneDecl, name string, rows, slots int) *builder {
	return &builder{
		declared: declared,
		g:        &models.Greenhouse{Name: strings.TrimSpace(name), Rows: rows, SlotsPerRow: slots},
	}
}

func (b *builder) plant(name string, row, slot, liters, grams int) {
	b.g.Plants = append(b.g.Plants, models.Plant{
		Name:   strings.TrimSpace(name),
		Row:    row,
		Slot:   slot,
		Liters: liters,
		Grams:  grams,
	})
}

// assign copies the declared drone id onto row. Unknown ids are ignored.
func (b *builder) assign(id string, row int) {
	id = strings.TrimSpace(id)
	for _, d := range b.declared {
		if d.ID == id {
			b.g.Drones = append(b.g.Drones, models.Drone{
				DroneID:  d.ID,
				Name:     d.Name,
				Row:      row,
				Sequence: len(b.g.Drones),
			})
			return
		}
	}
}

func (b *builder) plan(name string, entries []string) {
	p := models.Plan{Name: strings.TrimSpace(name), Position: len(b.g.Plans)}
	p.SetEntries(entries)
	// Round trip through Entries to drop empty tokens.
	p.SetEntries(p.Entries())
	b.g.Plans = append(b.g.Plans, p)
}

func (b *builder) build() (*models.Greenhouse, error) {
	if b.g.Name == "" {
		return nil, fmt.Errorf("%w: greenhouse without name", ErrInvalidDocument)
	}
	if b.g.Rows < 0 || b.g.SlotsPerRow < 0 {
		return nil, fmt.Errorf("%w: greenhouse %q has negative dimensions", ErrInvalidDocument, b.g.Name)
	}
	seen := make(map[string]bool, len(b.g.Plans))
	for _, p := range b.g.Plans {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: greenhouse %q has a plan without name", ErrInvalidDocument, b.g.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: greenhouse %q declares plan %q twice", ErrInvalidDocument, b.g.Name, p.Name)
		}
		seen[p.Name] = true
	}
	if err := b.g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: greenhouse %q: %w", ErrInvalidDocument, b.g.Name, err)
	}
	return b.g, nil
}

// splitPlan splits comma separated plan text into tokens.
func splitPlan(text string) []string {
	return strings.Split(text, ",")
}
