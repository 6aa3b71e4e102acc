package migrations

import (
	"strings"
	"testing"
)

func TestList(t *testing.T) {
	up, err := List("up")
	if err != nil {
		t.Fatalf("List(up): %v", err)
	}
	if len(up) == 0 {
		t.Fatal("expected at least one up migration")
	}
	if up[0].Name != "001_create_survey_tables" {
		t.Errorf("first migration = %q", up[0].Name)
	}
	for _, table := range []string{"country_year_yields", "climate_zone_year_yields", "climate_zones"} {
		if !strings.Contains(up[0].SQL, table) {
			t.Errorf("up migration does not create %s", table)
		}
	}

	down, err := List("down")
	if err != nil {
		t.Fatalf("List(down): %v", err)
	}
	if len(down) != len(up) {
		t.Errorf("expected %d down migrations, got %d", len(up), len(down))
	}
	if down[0].Name != up[len(up)-1].Name {
		t.Errorf("down starts with %q, want %q", down[0].Name, up[len(up)-1].Name)
	}

	if _, err := List("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
}

func TestList_YieldAttributes(t *testing.T) {
	up, err := List("up")
	if err != nil {
		t.Fatalf("List(up): %v", err)
	}
	if len(up) < 2 {
		t.Fatalf("expected at least two up migrations, got %d", len(up))
	}
	m := up[1]
	if m.Name != "002_yield_attributes" {
		t.Fatalf("second migration = %q", m.Name)
	}
	for _, table := range []string{"country_year_yields", "climate_zone_year_yields"} {
		if !strings.Contains(m.SQL, "ALTER TABLE "+table) {
			t.Errorf("migration does not alter %s", table)
		}
	}
	if !strings.Contains(m.SQL, "attributes JSONB") {
		t.Error("migration does not add a JSONB attributes column")
	}
}
