package assay

import (
	"math"

	"github.com/cliahub/qpcrhub/internal/plate"
)

// Fluor is an instrument dye channel.
type Fluor string

const (
	FluorFAM Fluor = "FAM"
	FluorHEX Fluor = "HEX"
	FluorCy5 Fluor = "Cy5"
)

// MapTo96 folds 384-well instrument readings onto the 96-well sample grid
// using the protocol's fluor wiring. Each sample well reads its genes from
// the quadrant/channel combination the protocol assigns them; a missing
// reading is recorded as not detected. raw is keyed by padded 384-well id,
// then channel.
func (p *Protocol) MapTo96(raw map[string]map[Fluor]float64) map[plate.Well]CqValues {
	out := make(map[plate.Well]CqValues, plate.Rows96*plate.Cols96)
	for _, w := range plate.Wells96() {
		values := make(CqValues)
		for fluor, wiring := range p.Mapping {
			for quadrant, gene := range wiring {
				id := plate.To384(w, quadrant).PaddedID()
				if cq, ok := raw[id][fluor]; ok {
					values[gene] = cq
				} else {
					values[gene] = math.NaN()
				}
			}
		}
		out[w] = values
	}
	return out
}
