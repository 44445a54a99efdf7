package receipt

import (
	"regexp"
	"strconv"
	"strings"
)

// amountRE matches a money amount with exactly two fractional digits and
// optional comma grouping, e.g. "500.00" or "1,200.50". Amounts without a
// decimal point are deliberately not matched.
var amountRE = regexp.MustCompile(`\d[\d,]*\.\d{2}`)

// FindAmount returns the first amount in reading order. There is no attempt to
// tell a total from a subtotal or fee.
func FindAmount(text string) (float64, bool) {
	m := amountRE.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ExtractAmount is FindAmount with 0 standing in for "not detected".
func ExtractAmount(text string) float64 {
	v, _ := FindAmount(text)
	return v
}
