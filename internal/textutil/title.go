package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	lowerCaser = cases.Lower(language.Und)

	wordPattern  = regexp.MustCompile(`\S+`)
	romanPattern = regexp.MustCompile(`(?i)^M{0,4}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)

	romanValues = map[rune]int{'M': 1000, 'D': 500, 'C': 100, 'L': 50, 'X': 10, 'V': 5, 'I': 1}
)

// NormalizeTitle reduces a title to its comparison form: letters, digits, and
// whitespace only, lower-cased, with standalone Roman numerals rewritten.
func NormalizeTitle(title string) string {
	return ReplaceRomanNumerals(AlphaNumeric(title))
}

// AlphaNumeric drops every rune that is not a letter, digit, or whitespace and
// lower-cases the remainder.
func AlphaNumeric(value string) string {
	filtered := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, value)
	return lowerCaser.String(filtered)
}

// ReplaceRomanNumerals rewrites whitespace-delimited Roman numerals in the
// range 1..3999 as decimal numbers. Matching is case-insensitive, so "Ii"
// becomes "2"; words that merely start with numeral letters stay unchanged.
func ReplaceRomanNumerals(value string) string {
	return wordPattern.ReplaceAllStringFunc(value, func(word string) string {
		if !romanPattern.MatchString(word) {
			return word
		}
		n := romanToInt(strings.ToUpper(word))
		if n < 1 || n > 3999 {
			return word
		}
		return strconv.Itoa(n)
	})
}

func romanToInt(roman string) int {
	sum, prev := 0, 0
	runes := []rune(roman)
	for i := len(runes) - 1; i >= 0; i-- {
		value, ok := romanValues[runes[i]]
		if !ok {
			return -1
		}
		if value < prev {
			sum -= value
		} else {
			sum += value
		}
		prev = value
	}
	return sum
}
