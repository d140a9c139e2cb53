package spartn

import "fmt"

// SPARTN v2 message types (TF002).
const (
	TypeOCB  uint8 = 0 // orbit, clock, bias
	TypeHPAC uint8 = 1 // high-precision atmosphere correction
	TypeGAD  uint8 = 2 // geographic area definition
	TypeBPAC uint8 = 3 // basic-precision atmosphere correction
	TypeEAS  uint8 = 4 // encryption and authentication support
	TypePROP uint8 = 120
)

var typeNames = map[uint8]string{
	TypeOCB:  "OCB",
	TypeHPAC: "HPAC",
	TypeGAD:  "GAD",
	TypeBPAC: "BPAC",
	TypeEAS:  "EAS",
	TypePROP: "PROP",
}

// OCB and HPAC subtypes are per constellation.
var gnssSubtypes = [...]string{"GPS", "GLO", "GAL", "BDS", "QZSS"}

var easSubtypes = [...]string{"KEY", "GROUP-AUTH"}

// TypeName returns the short name of a message type, or "TYPE<n>".
func TypeName(msgType uint8) string {
	if n, ok := typeNames[msgType]; ok {
		return n
	}
	return fmt.Sprintf("TYPE%d", msgType)
}

// MessageName returns a name for a type/subtype pair such as "HPAC-GAL".
func MessageName(msgType, subType uint8) string {
	base := TypeName(msgType)
	switch msgType {
	case TypeOCB, TypeHPAC:
		if int(subType) < len(gnssSubtypes) {
			return base + "-" + gnssSubtypes[subType]
		}
	case TypeEAS:
		if int(subType) < len(easSubtypes) {
			return base + "-" + easSubtypes[subType]
		}
	case TypeGAD, TypeBPAC:
		if subType == 0 {
			return base
		}
	}
	return fmt.Sprintf("%s-%d", base, subType)
}
