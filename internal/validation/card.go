package validation

import (
	"regexp"
	"strings"
)

// CardNetwork обозначает платёжную систему, выпустившую карту.
type CardNetwork string

const (
	CardVisa       CardNetwork = "Visa"
	CardMasterCard CardNetwork = "MasterCard"
	CardAmex       CardNetwork = "Amex"
	CardDiscover   CardNetwork = "Discover"
)

var cardPatterns = []struct {
	network CardNetwork
	re      *regexp.Regexp
}{
	{CardVisa, regexp.MustCompile(`^4(\d{12}|\d{15})$`)},
	{CardMasterCard, regexp.MustCompile(`^5[1-5]\d{14}$`)},
	{CardAmex, regexp.MustCompile(`^3[47]\d{13}$`)},
	{CardDiscover, regexp.MustCompile(`^6(011|5\d\d)\d{12}$`)},
}

// NormalizeCardNumber убирает пробелы и дефисы, которыми пользователи разделяют группы цифр.
func NormalizeCardNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(number))
}

// DetectCardNetwork определяет платёжную систему по префиксу и длине номера.
func DetectCardNetwork(number string) (CardNetwork, bool) {
	for _, p := range cardPatterns {
		if p.re.MatchString(number) {
			return p.network, true
		}
	}
	return "", false
}

// MaskCardNumber заменяет звёздочками все цифры номера, кроме последних четырёх.
func MaskCardNumber(number string) string {
	if len(number) <= 4 {
		return strings.Repeat("*", len(number))
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

// Redact полностью скрывает значение.
func Redact(value string) string {
	return strings.Repeat("*", len(value))
}
