/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/friendsincode/invernadero/internal/simulation"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
)

// WriteSummary prints a terminal summary of res: the headline numbers and
// one table row per drone. Colors are dropped when w is not a terminal.
func WriteSummary(w io.Writer, res *simulation.Result) error {
	title := titleStyle.Render(fmt.Sprintf("%s / %s", res.GreenhouseName, res.PlanName))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("Dron", "Hilera", "Litros", "Gramos")
	for _, d := range res.Drones {
		t.Row(d.Name, strconv.Itoa(d.Row), strconv.Itoa(d.Liters), strconv.Itoa(d.Grams))
	}
	t.Row("Total", "", strconv.Itoa(res.TotalLiters), strconv.Itoa(res.TotalGrams))

	lines := []string{
		title,
		fmt.Sprintf("Tiempo optimo: %d s", res.Makespan),
	}
	if res.Skipped > 0 {
		lines = append(lines, fmt.Sprintf("Entradas omitidas: %d", res.Skipped))
	}
	lines = append(lines, t.String())

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, lines...))
	return err
}
