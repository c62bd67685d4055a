package triage

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// redFlagKeywords are matched against lowercased text with diacritics removed.
// Romanian and English variants are listed per category.
var redFlagKeywords = map[string][]string{
	"fever": {
		"febra", "febril", "temperatura mare", "temperatura ridicata",
		"fever", "high temperature",
	},
	"swelling": {
		"umflatura", "umflaturi", "umflat", "umflata", "umflat obrazul",
		"swelling", "swollen",
	},
	"breathing": {
		"respir greu", "respir cu greu", "nu pot respira", "greu sa respir",
		"dificultati de respiratie", "dificultate la respiratie",
		"difficulty breathing", "trouble breathing", "shortness of breath",
		"can't breathe", "cannot breathe",
	},
	"bleeding": {
		"sangerare abundenta", "sangereaza abundent", "sangerare puternica",
		"sangerare care nu se opreste", "nu se opreste sangerarea",
		"uncontrolled bleeding", "heavy bleeding", "bleeding heavily",
		"bleeding won't stop", "bleeding that won't stop",
	},
	"trauma": {
		"traumatism", "lovitura", "lovit la dinte", "accident",
		"trauma", "injury", "knocked out",
	},
	"severe_pain": {
		"durere severa", "durere puternica", "durere insuportabila",
		"dureri severe", "dureri puternice", "dureri insuportabile",
		"severe pain", "unbearable pain", "excruciating",
	},
	"infection": {
		"puroi", "infectie", "infectat", "infectata", "abces",
		"infection", "infected", "abscess", "pus-filled",
	},
}

var redFlagPattern = compileKeywords(redFlagKeywords)

var (
	// English "pus" collides with the Romanian participle of "a pune" (to put)
	pusPattern = regexp.MustCompile(`\bpus\b`)
	// romanianAuxiliary matches the word before a participle: "am pus",
	// "s-a pus", "mi-am pus", "va fi pus", "am mai pus"
	romanianAuxiliary = regexp.MustCompile(`^(?:[a-z]+-)?(?:am|ai|a|au|ati|fi|fost|mai)$`)
	// romanianClitic follows a participle: "pus-o", "pus-l"
	romanianClitic = regexp.MustCompile(`^-(?:o|l|i|le|ne|va)\b`)
)

func compileKeywords(groups map[string][]string) *regexp.Regexp {
	var alternatives []string
	for _, keywords := range groups {
		for _, kw := range keywords {
			parts := strings.Fields(kw)
			for i := range parts {
				parts[i] = regexp.QuoteMeta(parts[i])
			}
			alternatives = append(alternatives, strings.Join(parts, `\s+`))
		}
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(alternatives, "|") + `)\b`)
}

// HasRedFlags reports whether text mentions any urgency keyword.
// Matching ignores case and diacritics.
func HasRedFlags(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	normalized := normalize(text)
	return redFlagPattern.MatchString(normalized) || mentionsPus(normalized)
}

// mentionsPus finds "pus" used as a noun, skipping Romanian verb forms
func mentionsPus(text string) bool {
	for _, loc := range pusPattern.FindAllStringIndex(text, -1) {
		if romanianClitic.MatchString(text[loc[1]:]) {
			continue
		}
		before := strings.Fields(text[:loc[0]])
		if len(before) > 0 && romanianAuxiliary.MatchString(before[len(before)-1]) {
			continue
		}
		return true
	}
	return false
}

// normalize lowercases text and strips combining marks, so "Febră" and
// "febra" compare equal. Romanian comma-below and cedilla letters both fold
// to their base letter.
func normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.ToLower(out)
}
