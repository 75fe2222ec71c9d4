package assay

import (
	"strings"

	"github.com/cliahub/qpcrhub/internal/plate"
)

// ControlType is the role a non-sample well plays on the plate. At most
// one applies per well; a well without one holds a patient sample.
type ControlType string

const (
	ControlNTC ControlType = "NTC"
	ControlPC  ControlType = "PC"
	ControlPBS ControlType = "PBS"
	ControlHRC ControlType = "HRC"
)

// ParseControlPrefix matches an accession-style label against the control
// vocabulary by prefix, e.g. "NTC_3" is an NTC. Returns false for sample
// accessions.
func ParseControlPrefix(label string) (ControlType, bool) {
	for _, ct := range []ControlType{ControlNTC, ControlPC, ControlPBS, ControlHRC} {
		if strings.HasPrefix(label, string(ct)) {
			return ct, true
		}
	}
	return "", false
}

// controlNames maps the labels operators type into plate maps to control
// types, including the spelling variants seen in submitted forms.
var controlNames = map[string]ControlType{
	"Water_1": ControlNTC,
	"Water_2": ControlNTC,
	"Water_3": ControlNTC,
	"Water_4": ControlNTC,
	"Water_5": ControlNTC,
	"Water_6": ControlNTC,
	"Water":   ControlNTC,
	"water":   ControlNTC,
	"PC":      ControlPC,
	"HSC":     ControlHRC,
	"UTM":     ControlPBS,
	"PC_1":    ControlPC,
	"PC_2":    ControlPC,
	"HSC_1":   ControlHRC,
	"HSC_2":   ControlHRC,
	"UTM_1":   ControlPBS,
	"UTM_2":   ControlPBS,
	"NTC":     ControlNTC,
	"NC":      ControlNTC,
	"HRC":     ControlHRC,
	"PBS":     ControlPBS,
}

// ControlFromLabel resolves a plate-map label to a control type, if the
// label names one.
func ControlFromLabel(label string) (ControlType, bool) {
	ct, ok := controlNames[label]
	return ct, ok
}

// StandardControlWells is the fixed control layout used by production
// sample plates: NTC at the plate corners and column edges, PC/HRC/PBS in
// columns 8-10 of the top and bottom rows.
func StandardControlWells() map[plate.Well]ControlType {
	return controlLayout(map[string]ControlType{
		"A1": ControlNTC, "A8": ControlPC, "A9": ControlHRC, "A10": ControlPBS,
		"A11": ControlNTC, "A12": ControlNTC,
		"H1": ControlNTC, "H8": ControlPC, "H9": ControlHRC, "H10": ControlPBS,
		"H11": ControlNTC, "H12": ControlNTC,
	})
}

// ValidationControlWells is the layout for limit-of-detection validation
// plates: every well of columns 1 and 12 is an NTC.
func ValidationControlWells() map[plate.Well]ControlType {
	layout := make(map[string]ControlType, 2*plate.Rows96)
	for r := 0; r < plate.Rows96; r++ {
		layout[plate.Well{Row: r, Col: 0}.ID()] = ControlNTC
		layout[plate.Well{Row: r, Col: plate.Cols96 - 1}.ID()] = ControlNTC
	}
	return controlLayout(layout)
}

func controlLayout(ids map[string]ControlType) map[plate.Well]ControlType {
	layout := make(map[plate.Well]ControlType, len(ids))
	for id, ct := range ids {
		w, err := plate.ParseID(id)
		if err != nil {
			panic(err) // static layout tables are program constants
		}
		layout[w] = ct
	}
	return layout
}
