package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gridwatch/internal/model"
)

func TestWriteGridCSV(t *testing.T) {
	g := model.NewGridSnapshot()
	g.Rows[0].Minutes[0] = model.Known(31.5)
	g.Rows[0].RT = model.Known(31.5)
	g.Rows[0].DA = model.Known(30)
	g.Rows[0].Spread = model.Known(1.5)

	var buf bytes.Buffer
	if err := WriteGridCSV(&buf, g); err != nil {
		t.Fatalf("WriteGridCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 25 {
		t.Fatalf("expected header + 24 rows, got %d lines", len(lines))
	}
	if lines[0] != "HE,0,5,10,15,20,25,30,35,40,45,50,55,RT,DA,DA/RT" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != "1,31.50,,,,,,,,,,,,31.50,30.00,1.50" {
		t.Fatalf("unexpected HE1 row %q", lines[1])
	}
	if lines[24] != "24,,,,,,,,,,,,,,," {
		t.Fatalf("unknown values must be empty cells, got %q", lines[24])
	}
}

func TestWriteGridCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.csv")
	if err := WriteGridCSVFile(path, model.NewGridSnapshot()); err != nil {
		t.Fatalf("WriteGridCSVFile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(raw), "HE,0,5") {
		t.Fatalf("unexpected file %q", raw)
	}
}
