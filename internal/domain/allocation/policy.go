package allocation

import (
	"fmt"
	"strings"

	"canteiro/internal/core/entity"
)

// RestockPolicy decides whether a return puts material back on stock.
type RestockPolicy string

const (
	// RestockNever tracks returned material on the allocation only.
	RestockNever RestockPolicy = "never"
	// RestockAlways writes a restocking entry for every return.
	RestockAlways RestockPolicy = "always"
	// RestockUsableOnly restocks returns in good condition.
	RestockUsableOnly RestockPolicy = "usable_only"
)

// ParseRestockPolicy parses a configured policy. Empty means never.
func ParseRestockPolicy(s string) (RestockPolicy, error) {
	switch p := RestockPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RestockNever, nil
	case RestockNever, RestockAlways, RestockUsableOnly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown restock policy %q (want never, always or usable_only)", s)
	}
}

// Restocks reports whether a return in condition c goes back to stock.
func (p RestockPolicy) Restocks(c entity.MaterialCondition) bool {
	switch p {
	case RestockAlways:
		return true
	case RestockUsableOnly:
		return c == entity.ConditionGood
	default:
		return false
	}
}
