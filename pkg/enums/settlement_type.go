package enums

import "fmt"

// SettlementType distinguishes single-seller orders, whose settlement can be
// paid out directly, from multi-seller orders that are split by the platform.
type SettlementType string

const (
	SettlementTypeDirectToSeller SettlementType = "direct_to_seller"
	SettlementTypePlatformSplit  SettlementType = "platform_split"
)

var validSettlementTypes = []SettlementType{
	SettlementTypeDirectToSeller,
	SettlementTypePlatformSplit,
}

// IsValid reports whether the value is a known SettlementType.
func (s SettlementType) IsValid() bool {
	for _, candidate := range validSettlementTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSettlementType converts raw input into a SettlementType.
func ParseSettlementType(value string) (SettlementType, error) {
	for _, candidate := range validSettlementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement type %q", value)
}
