// Package faq answers visitor questions: a keyword classifier with canned
// multilingual answers, optionally backed by a hosted language model.
package faq

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Intent is the topic a question was classified under.
type Intent string

const (
	IntentDocs     Intent = "docs"
	IntentCaseType Intent = "case-type"
	IntentProcess  Intent = "process"
	IntentPricing  Intent = "pricing"
	IntentDeadline Intent = "deadline"
	IntentUnknown  Intent = "unknown"
)

type rule struct {
	intent Intent
	rx     *regexp.Regexp
}

// rules are tried in order; the first match wins. Patterns run on folded
// text (lower-case, no accents).
var rules = []rule{
	{IntentDocs, regexp.MustCompile(`\b(documents?|papiers?|pieces?|justificatifs?|feuillets?|releves?|recus?|slips?|receipts?|forms? to (bring|provide)|what do i need|documentos?|comprobantes?|recibos?)\b`)},
	{IntentPricing, regexp.MustCompile(`\b(prix|tarifs?|couts?|coute|combien|frais|acompte|price|pricing|cost|costs|fees?|how much|deposit|precios?|cuanto|cuesta|tarifas?|honorarios)\b`)},
	{IntentDeadline, regexp.MustCompile(`\b(date limite|dates? butoir|echeances?|delais?|quand|deadlines?|due date|when|fecha limite|plazos?|cuando|30 avril|april 30|15 juin|june 15)\b`)},
	{IntentProcess, regexp.MustCompile(`\b(comment|etapes?|processus|fonctionne|deroule|how does|how do|steps?|process|procedure|como funciona|pasos|proceso)\b`)},
	{IntentCaseType, regexp.MustCompile(`\b(t1|t2|ta|autonome|travailleur|societe|entreprise|compagnie|particulier|self[- ]employed|freelancer?|corporation|corporate|business|personal|individual|autonomo|empresa|sociedad)\b`)},
}

// Fold lower-cases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Classify maps free text to an intent.
func Classify(text string) Intent {
	folded := Fold(text)
	for _, r := range rules {
		if r.rx.MatchString(folded) {
			return r.intent
		}
	}
	return IntentUnknown
}
