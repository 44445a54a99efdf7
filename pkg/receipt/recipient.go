package receipt

import (
	"regexp"
	"strings"
)

// MaxRecipientLen caps a recipient name in runes; the character classes below
// happily run across lines and would otherwise swallow the rest of the slip.
const MaxRecipientLen = 50

// matcher returns a raw candidate and whether it matched at all.
type matcher func(text string) (string, bool)

var (
	// label cue: ไปยัง (to), โอนไป (transferred to), ผู้รับ (recipient), or English "to".
	labelCueRE = regexp.MustCompile(`(?:ไปยัง|โอนไป|ผู้รับ|\b(?:to|To|TO)\b)[:\s]*([ก-๙a-zA-Z\s]+)`)
	// honorific: นางสาว (Miss), นาง (Mrs), นาย (Mr), or the English forms.
	honorificRE = regexp.MustCompile(`(?:นางสาว|นาง|นาย|Mr\.|Mrs\.|Ms\.)[ก-๙a-zA-Z\s]+`)
	// two Thai tokens in a row usually means first name + surname.
	thaiPairRE = regexp.MustCompile(`[ก-๙]{2,}\s+[ก-๙]{2,}`)
)

// recipientCascade is ordered from most to least reliable signal.
var recipientCascade = []matcher{
	matchLabelCue,
	matchHonorific,
	matchThaiPair,
}

// matchLabelCue tries every cue in reading order; a cue followed only by
// digits or blanks gives way to the next one.
func matchLabelCue(text string) (string, bool) {
	for _, m := range labelCueRE.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 && strings.TrimSpace(m[1]) != "" {
			return m[1], true
		}
	}
	return "", false
}

func matchHonorific(text string) (string, bool) {
	m := honorificRE.FindString(text)
	return m, m != ""
}

func matchThaiPair(text string) (string, bool) {
	m := thaiPairRE.FindString(text)
	return m, m != ""
}

// FindRecipient runs the cascade and returns the first candidate that is not
// blank once trimmed.
func FindRecipient(text string) (string, bool) {
	for _, match := range recipientCascade {
		raw, ok := match(text)
		if !ok {
			continue
		}
		if name := cleanRecipient(raw); name != "" {
			return name, true
		}
	}
	return "", false
}

// ExtractRecipient is FindRecipient with "" standing in for "not detected".
func ExtractRecipient(text string) string {
	name, _ := FindRecipient(text)
	return name
}

func cleanRecipient(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > MaxRecipientLen {
		r = r[:MaxRecipientLen]
	}
	return string(r)
}
