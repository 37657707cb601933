// Package region writes ring results as DS9 overlay regions and as a
// plain-text parameter table.
package region

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"fpringfit/internal/models"
)

const header = `# Region file format: DS9 version 4.1
global color=green dashlist=8 3 width=1 font="helvetica 10 normal roman" select=1 highlite=1 dash=0 fixed=0 edit=1 move=1 delete=1 include=1 source=1
image
`

// WidthFactor is the number of sigmas drawn either side of the peak radius
const WidthFactor = 3.0

// WriteRegions writes one solid circle at the peak radius and dashed
// circles at PeakRadius ± 3 sigma for each ring. DS9 image coordinates are
// one-based, so centres are shifted by one pixel.
func WriteRegions(w io.Writer, rings []*models.Ring) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(header); err != nil {
		return err
	}
	for i, r := range rings {
		x, y := r.Xc+1, r.Yc+1
		fmt.Fprintf(bw, "circle(%.3f,%.3f,%.3f) # color=green text={ring %d}\n", x, y, r.PeakRadius, i)
		if inner := r.PeakRadius - WidthFactor*r.Sigma; inner > 0 {
			fmt.Fprintf(bw, "circle(%.3f,%.3f,%.3f) # color=red dash=1\n", x, y, inner)
		}
		if r.Sigma > 0 {
			fmt.Fprintf(bw, "circle(%.3f,%.3f,%.3f) # color=red dash=1\n", x, y, r.PeakRadius+WidthFactor*r.Sigma)
		}
	}
	return bw.Flush()
}

// Provenance holds descriptive key/value lines written above the table
type Provenance map[string]string

// WriteTable writes the ring parameters as a tab-separated table preceded
// by "# key: value" provenance lines in key order
func WriteTable(w io.Writer, rings []*models.Ring, prov Provenance) error {
	bw := bufio.NewWriter(w)

	keys := make([]string, 0, len(prov))
	for k := range prov {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(bw, "# %s: %s\n", k, prov[k])
	}

	fmt.Fprintln(bw, "ring\txc\tyc\tpeak_radius\tpeak_radius_err\tamplitude\tsigma")
	for i, r := range rings {
		fmt.Fprintf(bw, "%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			i, r.Xc, r.Yc, r.PeakRadius, r.PeakRadiusError, r.Amplitude, r.Sigma)
	}
	return bw.Flush()
}

// SaveRegions writes the region file to path
func SaveRegions(path string, rings []*models.Ring) error {
	return saveWith(path, func(w io.Writer) error { return WriteRegions(w, rings) })
}

// SaveTable writes the parameter table to path
func SaveTable(path string, rings []*models.Ring, prov Provenance) error {
	return saveWith(path, func(w io.Writer) error { return WriteTable(w, rings, prov) })
}

func saveWith(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
