package db

import "strings"

// NormalizePhone strips everything but digits. Phones are compared in this
// form everywhere: customer keys, member rows, winner snapshots, scope filters.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, ch := range phone {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
