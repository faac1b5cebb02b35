package formula

import (
	"strings"

	"github.com/gosimple/slug"
)

// Identifier normalizes a component name or code into the form formulas use
// to reference it: "House Rent Allowance" becomes HOUSE_RENT_ALLOWANCE.
func Identifier(name string) string {
	return strings.ToUpper(strings.ReplaceAll(slug.Make(strings.TrimSpace(name)), "-", "_"))
}
