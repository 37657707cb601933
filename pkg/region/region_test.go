package region

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fpringfit/internal/models"
)

// TestWriteRegions verifies circle lines for normal and degenerate rings
func TestWriteRegions(t *testing.T) {
	rings := []*models.Ring{
		models.NewRing(99, 49, 40, 10, 2),
		models.NewRing(10, 10, 5, 1, 0),
	}
	var buf bytes.Buffer
	if err := WriteRegions(&buf, rings); err != nil {
		t.Fatalf("WriteRegions failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "# Region file format: DS9") {
		t.Errorf("Missing DS9 header:\n%s", out)
	}

	var circles []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "circle(") {
			circles = append(circles, line)
		}
	}
	want := []string{
		"circle(100.000,50.000,40.000) # color=green text={ring 0}",
		"circle(100.000,50.000,34.000) # color=red dash=1",
		"circle(100.000,50.000,46.000) # color=red dash=1",
		"circle(11.000,11.000,5.000) # color=green text={ring 1}",
	}
	if diff := cmp.Diff(want, circles); diff != "" {
		t.Errorf("Region circles mismatch (-want +got):\n%s", diff)
	}
}

// TestWriteTable verifies provenance ordering and row formatting
func TestWriteTable(t *testing.T) {
	rings := []*models.Ring{models.NewRing(1, 2, 3, 4, 5)}
	var buf bytes.Buffer
	prov := Provenance{"source": "frame.png", "method": "FIT"}
	if err := WriteTable(&buf, rings, prov); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"# method: FIT",
		"# source: frame.png",
		"ring\txc\tyc\tpeak_radius\tpeak_radius_err\tamplitude\tsigma",
		"0\t1.0000\t2.0000\t3.0000\t1.0000\t4.0000\t5.0000",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("Table mismatch (-want +got):\n%s", diff)
	}
}

// TestSaveFiles verifies that both outputs are written to disk
func TestSaveFiles(t *testing.T) {
	dir := t.TempDir()
	rings := []*models.Ring{models.NewRing(5, 5, 3, 1, 1)}

	regPath := filepath.Join(dir, "rings.reg")
	if err := SaveRegions(regPath, rings); err != nil {
		t.Fatalf("SaveRegions failed: %v", err)
	}
	tabPath := filepath.Join(dir, "rings.txt")
	if err := SaveTable(tabPath, rings, nil); err != nil {
		t.Fatalf("SaveTable failed: %v", err)
	}
	for _, p := range []string{regPath, tabPath} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("Expected non-empty file %s (err=%v)", p, err)
		}
	}

	if err := SaveTable(filepath.Join(dir, "missing", "rings.txt"), rings, nil); err == nil {
		t.Error("Expected error writing into a missing directory")
	}
}
