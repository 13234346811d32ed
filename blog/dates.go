package blog

import (
	"fmt"
	"time"
)

var ptBRMonths = [12]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}

// FormatDate renders t as "dd MMM yyyy" with Brazilian Portuguese month
// abbreviations, in UTC. A nil time renders as "".
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	u := t.UTC()
	return fmt.Sprintf("%02d %s %04d", u.Day(), ptBRMonths[u.Month()-1], u.Year())
}
