package connector

import "strings"

// currencyCodes maps ISO alpha currency codes to Banco de Comercio's
// proprietary numeric codes.
var currencyCodes = map[string]string{
	"ARS": "032",
	"USD": "840",
}

// MapCurrency translates an ISO alpha code to the provider's numeric code.
// Unrecognized codes pass through unchanged.
func MapCurrency(alpha string) string {
	if numeric, ok := currencyCodes[strings.ToUpper(alpha)]; ok {
		return numeric
	}
	return alpha
}
