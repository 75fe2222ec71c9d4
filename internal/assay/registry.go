package assay

import (
	"fmt"
	"sort"

	"github.com/cliahub/qpcrhub/internal/plate"
)

func limit(v float64) *float64 { return &v }

// thresholds packs one gene's cutoffs in SOP table order: sample, PC,
// NTC, HRC, PBS. nil means no ceiling for that role.
func thresholds(sample, pc, ntc, hrc, pbs *float64) GeneThresholds {
	return GeneThresholds{Sample: sample, PC: pc, NTC: ntc, HRC: hrc, PBS: pbs}
}

var sopV1 = &Protocol{
	Name:           "SOP-V1",
	ProtocolFile:   "Covid19_protocol.prcl",
	PlateSetupFile: "Covid19_platelayout.pltd",
	VirusGenes:     []Gene{"RdRp", "E"},
	ControlGenes:   []Gene{"RNAse P"},
	Cutoffs: map[Gene]GeneThresholds{
		"RdRp":    thresholds(limit(40), limit(40), nil, nil, nil),
		"E":       thresholds(limit(40), limit(40), nil, nil, nil),
		"RNAse P": thresholds(limit(40), limit(40), nil, limit(40), nil),
	},
	Mapping: map[Fluor]map[plate.Quadrant]Gene{
		FluorFAM: {plate.QuadrantA1: "RdRp", plate.QuadrantA2: "E", plate.QuadrantB1: "RNAse P"},
	},
	BackgroundThreshold: 200,
	Radius:              0,
	PosClusterCutoff:    10,
	ops:                 baseOps,
}

var sopV2 = &Protocol{
	Name:           "SOP-V2",
	ProtocolFile:   "Covid19-LUNA_protocol.prcl",
	PlateSetupFile: "Covid19-v2_platelayout.pltd",
	VirusGenes:     []Gene{"N", "E"},
	ControlGenes:   []Gene{"RNAse P"},
	Cutoffs: map[Gene]GeneThresholds{
		"N":       thresholds(limit(40), limit(38), nil, nil, nil),
		"E":       thresholds(limit(40), limit(38), nil, nil, nil),
		"RNAse P": thresholds(limit(36), limit(38), nil, limit(36), nil),
	},
	Mapping: map[Fluor]map[plate.Quadrant]Gene{
		FluorFAM: {plate.QuadrantA1: "N", plate.QuadrantA2: "E"},
		FluorHEX: {plate.QuadrantB1: "RNAse P"},
	},
	BackgroundThreshold: 200,
	Radius:              1,
	PosClusterCutoff:    10,
	ops:                 baseOps,
}

var udg = &Protocol{
	Name:           "UDGprotocol",
	Experimental:   true,
	ProtocolFile:   "Covid19-UDG.prcl",
	PlateSetupFile: "Covid19-v2_platelayout.pltd",
	VirusGenes:     []Gene{"N", "E"},
	ControlGenes:   []Gene{"RNAse P"},
	Cutoffs: map[Gene]GeneThresholds{
		"N":       thresholds(limit(40), limit(38), nil, nil, nil),
		"E":       thresholds(limit(40), limit(38), nil, nil, nil),
		"RNAse P": thresholds(limit(36), limit(38), nil, limit(36), nil),
	},
	Mapping: map[Fluor]map[plate.Quadrant]Gene{
		FluorFAM: {plate.QuadrantA1: "N", plate.QuadrantA2: "E"},
		FluorHEX: {plate.QuadrantB1: "RNAse P"},
	},
	BackgroundThreshold: 300,
	Radius:              1,
	PosClusterCutoff:    10,
	ops:                 baseOps,
}

var sopV3 = &Protocol{
	Name:           "SOP-V3",
	ProtocolFile:   "Covid19-LUNA_protocol.prcl",
	PlateSetupFile: "Covid19-v2_platelayout.pltd",
	VirusGenes:     []Gene{"N", "E"},
	ControlGenes:   []Gene{"RNAse P"},
	Cutoffs: map[Gene]GeneThresholds{
		"N": thresholds(limit(40), limit(38), nil, nil, nil),
		"E": thresholds(limit(40), limit(38), nil, nil, nil),
		// no sample ceiling: RNAse P counts once detected at any cycle
		"RNAse P": thresholds(nil, limit(38), nil, limit(36), nil),
	},
	Mapping: map[Fluor]map[plate.Quadrant]Gene{
		FluorFAM: {plate.QuadrantA1: "N", plate.QuadrantA2: "E"},
		FluorHEX: {plate.QuadrantB1: "RNAse P"},
	},
	BackgroundThreshold: 300,
	Radius:              1,
	PosClusterCutoff:    15,
	HotWellRadius:       3,
	HotWellCutoff:       22,
	ops:                 v3Ops,
}

var protocols = map[string]*Protocol{
	sopV1.Name: sopV1,
	sopV2.Name: sopV2,
	udg.Name:   udg,
	sopV3.Name: sopV3,
}

// GetProtocol resolves a protocol by its exact SOP name. Unknown names are
// configuration errors.
func GetProtocol(name string) (*Protocol, error) {
	p, ok := protocols[name]
	if !ok {
		return nil, fmt.Errorf("unknown protocol %q", name)
	}
	return p, nil
}

// ProtocolNames lists the registered protocols in sorted order.
func ProtocolNames() []string {
	names := make([]string, 0, len(protocols))
	for name := range protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
