package scrapers

import (
	"strings"
	"testing"
	"unicode"
)

func TestGenerateUsername(t *testing.T) {
	u := GenerateUsername("jw", "John Smith")

	if !strings.HasPrefix(u, "jwjohns") {
		t.Errorf("expected prefix jwjohns, got %s", u)
	}
	if len(u) != len("jwjohns")+2 {
		t.Errorf("expected two digit suffix, got %s", u)
	}
	suffix := u[len("jwjohns"):]
	for _, r := range suffix {
		if !unicode.IsDigit(r) {
			t.Errorf("suffix %s contains non digit", suffix)
		}
	}
}

func TestGenerateUsernameSingleName(t *testing.T) {
	// a single word contributes both the first name and the last initial
	u := GenerateUsername("eg", "Madonna")
	if !strings.HasPrefix(u, "egmadonnam"[:usernameBaseMax]) {
		t.Errorf("unexpected base in %s", u)
	}
}

func TestGenerateUsernameEmptyName(t *testing.T) {
	u := GenerateUsername("pm", "")
	if !strings.HasPrefix(u, "pmuser") {
		t.Errorf("expected pmuser prefix, got %s", u)
	}
	if len(u) < usernameMinLen {
		t.Errorf("username %s shorter than %d", u, usernameMinLen)
	}
}

func TestGenerateUsernameMinLength(t *testing.T) {
	for i := 0; i < 50; i++ {
		u := GenerateUsername("v", "Al")
		if len(u) < usernameMinLen {
			t.Fatalf("username %s shorter than %d", u, usernameMinLen)
		}
	}
}

func TestGenerateUsernameTruncatesBase(t *testing.T) {
	u := GenerateUsername("os", "Bartholomew Featherstonehaugh")
	base := u[:len(u)-2]
	if len(base) > usernameBaseMax {
		t.Errorf("base %s longer than %d", base, usernameBaseMax)
	}
	if base != "osbartholo" {
		t.Errorf("unexpected base %s", base)
	}
}

func TestGenerateUsernameStripsPunctuation(t *testing.T) {
	u := GenerateUsername("gv", "Mary-Jane O'Hara")
	base := strings.TrimRight(u, "0123456789")
	for _, r := range base {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			t.Errorf("base %s contains %q", base, r)
		}
	}
}

func TestNicknameFrom(t *testing.T) {
	if got := nicknameFrom("John Smith"); got != "JohnSmith" {
		t.Errorf("expected JohnSmith, got %s", got)
	}
	if got := nicknameFrom("Bartholomew Featherstonehaugh"); len(got) > usernameBaseMax {
		t.Errorf("nickname %s too long", got)
	}
	if got := nicknameFrom(""); got != "" {
		t.Errorf("expected empty nickname, got %s", got)
	}
}
