package models

import (
	"errors"
	"testing"
)

func testGreenhouse() *Greenhouse {
	return &Greenhouse{
		Name:        "Invernadero San Marcos",
		Rows:        2,
		SlotsPerRow: 3,
		Plants: []Plant{
			{Name: "Tomate", Row: 1, Slot: 1, Liters: 1, Grams: 10},
			{Name: "Chile", Row: 1, Slot: 2, Liters: 2, Grams: 20},
			{Name: "Lechuga", Row: 2, Slot: 3, Liters: 3, Grams: 30},
		},
		Drones: []Drone{
			{DroneID: "1", Name: "DR01", Row: 1},
			{DroneID: "2", Name: "DR02", Row: 2},
		},
		Plans: []Plan{
			{Name: "Dia 1", Sequence: "H1-P2, H2-P3 ,, H1-P1"},
		},
	}
}

func TestLookups(t *testing.T) {
	g := testGreenhouse()

	if d, ok := g.DroneByRow(2); !ok || d.Name != "DR02" {
		t.Fatalf("DroneByRow(2) = %v, %v", d, ok)
	}
	if _, ok := g.DroneByRow(3); ok {
		t.Fatal("expected no drone on row 3")
	}
	if p, ok := g.PlantAt(1, 2); !ok || p.Name != "Chile" {
		t.Fatalf("PlantAt(1,2) = %v, %v", p, ok)
	}
	if _, ok := g.PlantAt(2, 1); ok {
		t.Fatal("expected empty slot at (2,1)")
	}
	if _, ok := g.PlanByName("Dia 2"); ok {
		t.Fatal("expected missing plan")
	}
}

func TestDroneByRowReturnsMutableEntity(t *testing.T) {
	g := testGreenhouse()
	d, _ := g.DroneByRow(1)
	d.Position = 3
	if g.Drones[0].Position != 3 {
		t.Fatal("expected lookup to return a pointer into the greenhouse")
	}
}

func TestResetDrones(t *testing.T) {
	g := testGreenhouse()
	for i := range g.Drones {
		g.Drones[i].Position = 3
		g.Drones[i].Liters = 9
		g.Drones[i].Grams = 90
	}

	g.ResetDrones()

	for _, d := range g.Drones {
		if d.Position != 1 || d.Liters != 0 || d.Grams != 0 {
			t.Fatalf("drone %s not reset: %+v", d.Name, d)
		}
	}
}

func TestPlanEntries(t *testing.T) {
	g := testGreenhouse()
	plan, ok := g.PlanByName("Dia 1")
	if !ok {
		t.Fatal("plan not found")
	}

	got := plan.Entries()
	want := []string{"H1-P2", "H2-P3", "H1-P1"}
	if len(got) != len(want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Entries()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	var empty Plan
	if entries := empty.Entries(); len(entries) != 0 {
		t.Fatalf("empty plan entries = %v", entries)
	}

	plan.SetEntries([]string{"H2-P1", "H2-P1"})
	if plan.Sequence != "H2-P1, H2-P1" {
		t.Fatalf("SetEntries sequence = %q", plan.Sequence)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Greenhouse)
		ok     bool
	}{
		{name: "valid", mutate: func(g *Greenhouse) {}, ok: true},
		{
			name:   "duplicate drone row",
			mutate: func(g *Greenhouse) { g.Drones[1].Row = 1 },
		},
		{
			name:   "duplicate plant slot",
			mutate: func(g *Greenhouse) { g.Plants[1].Slot = 1 },
		},
		{
			name:   "plant beyond slots per row",
			mutate: func(g *Greenhouse) { g.Plants[0].Slot = 4 },
		},
		{
			name:   "drone beyond rows",
			mutate: func(g *Greenhouse) { g.Drones[1].Row = 3 },
		},
		{
			name:   "drone id on two rows",
			mutate: func(g *Greenhouse) { g.Drones[1].DroneID = "1" },
		},
		{
			name:   "drone name on two rows",
			mutate: func(g *Greenhouse) { g.Drones[1].Name = "DR01" },
		},
		{
			name:   "drones without ids",
			mutate: func(g *Greenhouse) { g.Drones[0].DroneID, g.Drones[1].DroneID = "", "" },
			ok:     true,
		},
		{
			name: "unbounded geometry",
			mutate: func(g *Greenhouse) {
				g.Rows, g.SlotsPerRow = 0, 0
				g.Plants[0].Slot = 40
			},
			ok: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGreenhouse()
			tt.mutate(g)
			err := g.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidGreenhouse) {
				t.Fatalf("Validate() = %v, want ErrInvalidGreenhouse", err)
			}
		})
	}
}

func TestParseSlotRef(t *testing.T) {
	tests := []struct {
		in   string
		want SlotRef
		ok   bool
	}{
		{"H1-P2", SlotRef{1, 2}, true},
		{" H10-P3 ", SlotRef{10, 3}, true},
		{"h2-p1", SlotRef{2, 1}, true},
		{"H1P4", SlotRef{1, 4}, true},
		{"H 3 - P 5", SlotRef{3, 5}, true},
		{"H0-P1", SlotRef{}, false},
		{"H1-P0", SlotRef{}, false},
		{"HX-P1", SlotRef{}, false},
		{"1-2", SlotRef{}, false},
		{"H1-", SlotRef{}, false},
		{"H1-P", SlotRef{}, false},
		{"H+1-P+2", SlotRef{}, false},
		{"H1-P-2", SlotRef{}, false},
		{"H-1-P2", SlotRef{}, false},
		{"", SlotRef{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseSlotRef(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseSlotRef(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	if s := (SlotRef{Row: 2, Slot: 7}).String(); s != "H2-P7" {
		t.Errorf("String() = %q", s)
	}
}
