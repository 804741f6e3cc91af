package scrapers

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"
)

const (
	usernameBaseMax = 10
	usernameMinLen  = 7
)

// GenerateUsername derives a player username from a full name. The site
// initial is prefixed, the first name is used whole and the last name
// contributes its initial. A two digit suffix keeps collisions unlikely and
// short names are padded with extra digits up to the minimum length.
func GenerateUsername(initial, fullname string) string {
	parts := strings.Fields(strings.TrimSpace(fullname))

	base := strings.ToLower(initial)
	if len(parts) == 0 {
		base += "user"
	} else {
		// first name whole, last name's initial; a single word serves as both
		base += strings.ToLower(parts[0])
		last := []rune(parts[len(parts)-1])
		base += strings.ToLower(string(last[0]))
	}

	base = keepAlnum(base)
	if len(base) > usernameBaseMax {
		base = base[:usernameBaseMax]
	}

	username := base + fmt.Sprintf("%02d", rand.IntN(100))
	for len(username) < usernameMinLen {
		username += fmt.Sprintf("%d", rand.IntN(10))
	}
	return username
}

// nicknameFrom squeezes a full name into the short display field vendors
// allow next to the account.
func nicknameFrom(fullname string) string {
	nick := []rune(strings.ReplaceAll(fullname, " ", ""))
	if len(nick) > usernameBaseMax {
		nick = nick[:usernameBaseMax]
	}
	return string(nick)
}

func keepAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
