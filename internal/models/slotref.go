/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SlotRef addresses one planting slot: row ("hilera") and slot ("posicion").
type SlotRef struct {
	Row  int
	Slot int
}

// String renders the plan token form, e.g. "H1-P2".
func (r SlotRef) String() string {
	return fmt.Sprintf("H%d-P%d", r.Row, r.Slot)
}

// ParseSlotRef parses a plan token such as "H1-P2". Whitespace, letter case
// and a missing dash ("H1P2") are tolerated. Both numbers must be >= 1.
func ParseSlotRef(token string) (SlotRef, bool) {
	s := strings.ToUpper(strings.Join(strings.Fields(token), ""))
	if !strings.HasPrefix(s, "H") {
		return SlotRef{}, false
	}
	s = s[1:]

	idx := strings.Index(s, "P")
	if idx <= 0 {
		return SlotRef{}, false
	}
	rowPart := strings.TrimSuffix(s[:idx], "-")
	slotPart := s[idx+1:]

	if !allDigits(rowPart) || !allDigits(slotPart) {
		return SlotRef{}, false
	}
	row, err := strconv.Atoi(rowPart)
	if err != nil || row < 1 {
		return SlotRef{}, false
	}
	slot, err := strconv.Atoi(slotPart)
	if err != nil || slot < 1 {
		return SlotRef{}, false
	}
	return SlotRef{Row: row, Slot: slot}, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
