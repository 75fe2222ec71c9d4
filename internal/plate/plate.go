// Package plate models 96- and 384-well plate geometry. Wells are integer
// (row, col) coordinates internally; string ids like "A1" or "A01" appear
// only at file boundaries.
package plate

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Rows96 = 8
	Cols96 = 12

	Rows384 = 16
	Cols384 = 24
)

// Well is a zero-based plate coordinate. Row 0 is "A", Col 0 is "1".
type Well struct {
	Row int
	Col int
}

// ID returns the unpadded well id, e.g. "A1".
func (w Well) ID() string {
	return fmt.Sprintf("%c%d", 'A'+rune(w.Row), w.Col+1)
}

// PaddedID returns the zero-padded well id used by instrument exports,
// e.g. "A01".
func (w Well) PaddedID() string {
	return fmt.Sprintf("%c%02d", 'A'+rune(w.Row), w.Col+1)
}

// In96 reports whether the well fits the 96-well grid.
func (w Well) In96() bool {
	return w.Row >= 0 && w.Row < Rows96 && w.Col >= 0 && w.Col < Cols96
}

// In384 reports whether the well fits the 384-well grid.
func (w Well) In384() bool {
	return w.Row >= 0 && w.Row < Rows384 && w.Col >= 0 && w.Col < Cols384
}

// ParseID parses a well id in padded or unpadded form ("B7", "B07").
// Ids are validated against the 384-well grid, the larger of the two
// formats; callers working with 96-well layouts check In96 themselves.
func ParseID(s string) (Well, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if len(s) < 2 {
		return Well{}, fmt.Errorf("malformed well id %q", s)
	}
	row := int(s[0] - 'A')
	col, err := strconv.Atoi(s[1:])
	if err != nil {
		return Well{}, fmt.Errorf("malformed well id %q: %w", s, err)
	}
	w := Well{Row: row, Col: col - 1}
	if !w.In384() {
		return Well{}, fmt.Errorf("well id %q outside 384-well grid", s)
	}
	return w, nil
}

// Wells96 returns all 96-well coordinates in row-major order (A1..A12,
// B1..B12, ..., H12).
func Wells96() []Well {
	wells := make([]Well, 0, Rows96*Cols96)
	for r := 0; r < Rows96; r++ {
		for c := 0; c < Cols96; c++ {
			wells = append(wells, Well{Row: r, Col: c})
		}
	}
	return wells
}

// Quadrant names one of the four 384-well positions that fold onto a
// single 96-well coordinate: A1 top-left, A2 top-right, B1 bottom-left,
// B2 bottom-right.
type Quadrant string

const (
	QuadrantA1 Quadrant = "A1"
	QuadrantA2 Quadrant = "A2"
	QuadrantB1 Quadrant = "B1"
	QuadrantB2 Quadrant = "B2"
)

// Quadrants lists all quadrants in reading order.
var Quadrants = []Quadrant{QuadrantA1, QuadrantA2, QuadrantB1, QuadrantB2}

func (q Quadrant) offsets() (row, col int) {
	switch q {
	case QuadrantA1:
		return 0, 0
	case QuadrantA2:
		return 0, 1
	case QuadrantB1:
		return 1, 0
	case QuadrantB2:
		return 1, 1
	}
	return 0, 0
}

// To384 maps a 96-well coordinate plus a quadrant to the corresponding
// 384-well coordinate. Each 96 well expands to a 2x2 block on the 384
// grid.
func To384(w Well, q Quadrant) Well {
	dr, dc := q.offsets()
	return Well{Row: 2*w.Row + dr, Col: 2*w.Col + dc}
}

// To96 folds a 384-well coordinate back to its 96-well parent and the
// quadrant it occupies.
func To96(w Well) (Well, Quadrant) {
	parent := Well{Row: w.Row / 2, Col: w.Col / 2}
	switch {
	case w.Row%2 == 0 && w.Col%2 == 0:
		return parent, QuadrantA1
	case w.Row%2 == 0:
		return parent, QuadrantA2
	case w.Col%2 == 0:
		return parent, QuadrantB1
	}
	return parent, QuadrantB2
}
