/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package graph draws a simulation result as a Graphviz digraph: the plan
// sequence on one branch and the per-second drone actions on another.
package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/friendsincode/invernadero/internal/simulation"
)

const (
	maxPlanNodes   = 15
	maxSecondNodes = 10
)

// ErrUnsupportedFormat is returned by Render for output formats other than
// the ones Graphviz is asked to produce here.
var ErrUnsupportedFormat = errors.New("unsupported graph format")

// Options controls graph generation.
type Options struct {
	// Until limits the actions drawn to seconds <= Until. Zero draws all.
	Until int
}

// Generate returns the DOT source for res.
func Generate(res *simulation.Result, opts Options) []byte {
	w := &dotWriter{}
	w.line("digraph G {")
	w.line(`  rankdir="TB";`)
	w.line(`  size="10,8";`)
	w.line(`  node [shape="box", style="rounded,filled", fillcolor="lightblue"];`)

	w.node("plan", "Plan: "+res.PlanName, attr{"fillcolor", "gold"}, attr{"fontsize", "14"}, attr{"fontname", "Arial Bold"})
	prev := "plan"
	for i, entry := range res.Plan {
		id := "seq_" + strconv.Itoa(i)
		w.node(id, entry, attr{"fillcolor", "lightyellow"})
		w.edge(prev, id)
		prev = id
		if i+1 >= maxPlanNodes && i+1 < len(res.Plan) {
			w.node("seq_more", "...más elementos", attr{"fillcolor", "lightgray"})
			w.edge(prev, "seq_more")
			break
		}
	}

	steps := res.Until(opts.Until)
	if len(steps) > 0 {
		w.node("acciones_title", "Acciones por Tiempo", attr{"fillcolor", "lightgreen"}, attr{"fontsize", "12"}, attr{"fontname", "Arial Bold"})

		shown := steps
		if len(shown) > maxSecondNodes {
			shown = shown[:maxSecondNodes]
		}
		for _, step := range shown {
			tid := "tiempo_" + strconv.Itoa(step.Second)
			w.node(tid, fmt.Sprintf("Segundo %d", step.Second), attr{"fillcolor", "orange"}, attr{"shape", "ellipse"})
			w.edge("acciones_title", tid)
			for i, a := range step.Actions {
				aid := fmt.Sprintf("t%d_a%d", step.Second, i)
				w.node(aid, a.Drone+"\n"+a.Label, attr{"fillcolor", "white"}, attr{"shape", "note"}, attr{"fontsize", "10"})
				w.edge(tid, aid)
			}
		}
		if extra := len(steps) - maxSecondNodes; extra > 0 {
			w.node("more_actions", fmt.Sprintf("... %d segundos más", extra), attr{"fillcolor", "lightgray"}, attr{"shape", "plaintext"})
			w.edge("acciones_title", "more_actions")
		}
	}

	if opts.Until > 0 {
		w.node("time_info", fmt.Sprintf("Visualizando hasta t=%ds", opts.Until), attr{"fillcolor", "pink"}, attr{"shape", "note"})
	}

	w.line("}")
	return w.buf.Bytes()
}

// Render pipes DOT source through the Graphviz binary and returns the
// rendered image. Only png and svg are produced.
func Render(ctx context.Context, dotBin string, src []byte, format string) ([]byte, error) {
	switch format {
	case "png", "svg":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if dotBin == "" {
		dotBin = "dot"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, dotBin, "-T"+format)
	cmd.Stdin = bytes.NewReader(src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", dotBin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

type attr struct {
	key, value string
}

type dotWriter struct {
	buf bytes.Buffer
}

func (w *dotWriter) line(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte('\n')
}

func (w *dotWriter) node(id, label string, attrs ...attr) {
	fmt.Fprintf(&w.buf, "  %s [label=%s", quote(id), quote(label))
	for _, a := range attrs {
		fmt.Fprintf(&w.buf, ", %s=%s", a.key, quote(a.value))
	}
	w.buf.WriteString("];\n")
}

func (w *dotWriter) edge(from, to string) {
	fmt.Fprintf(&w.buf, "  %s -> %s;\n", quote(from), quote(to))
}

// quote renders a DOT double-quoted string. Newlines become the \n escape
// Graphviz centers on.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
