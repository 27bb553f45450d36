package sales

import (
	"regexp"
	"strconv"
)

var quantityDigits = regexp.MustCompile(`\d+`)

// NumericQuantity extracts the integer estimate from a free-form quantity
// string. The last number wins, so range phrasings like "100 à 200" resolve
// to the upper bound. Text without any number estimates to zero.
func NumericQuantity(quantity string) int {
	matches := quantityDigits.FindAllString(quantity, -1)
	if len(matches) == 0 {
		return 0
	}
	n, err := strconv.Atoi(matches[len(matches)-1])
	if err != nil {
		// digit runs longer than an int; treat as unparseable
		return 0
	}
	return n
}
