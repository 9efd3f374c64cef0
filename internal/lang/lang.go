// Package lang defines the portal's supported languages and resolves the
// language for a request from its candidate sources.
package lang

import (
	"strings"

	"golang.org/x/text/language"
)

// Lang is a supported user-facing language.
type Lang string

const (
	French  Lang = "fr"
	English Lang = "en"
	Spanish Lang = "es"
)

// Default is used when no source yields a supported language.
const Default = French

// CookieName is the cookie that mirrors the visitor's language choice.
const CookieName = "lang"

var supported = []language.Tag{language.French, language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

// Valid reports whether l is one of the supported languages.
func (l Lang) Valid() bool {
	switch l {
	case French, English, Spanish:
		return true
	}
	return false
}

// Parse normalises a language tag ("fr", "FR", "fr-CA", "es_MX") to a
// supported Lang. ok is false when the input is empty or unsupported, and
// when the base language is only guessed ("und" would otherwise read as en).
func Parse(s string) (Lang, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", "-"))
	if s == "" {
		return "", false
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", false
	}
	base, conf := tag.Base()
	if conf < language.High {
		return "", false
	}
	l := Lang(base.String())
	if !l.Valid() {
		return "", false
	}
	return l, true
}

// OrDefault parses s and falls back to Default.
func OrDefault(s string) Lang {
	if l, ok := Parse(s); ok {
		return l
	}
	return Default
}

// Sources are the places a request can carry a language preference, in
// precedence order.
type Sources struct {
	Query          string // ?lang= on the current URL
	Cookie         string // value of CookieName
	Stored         string // preference persisted with the dossier or profile
	AcceptLanguage string // raw Accept-Language header
}

// Resolve picks the language for a single request. The first source that
// parses to a supported language wins; Accept-Language is consulted last and
// only when its best match is a real match.
func Resolve(src Sources) Lang {
	for _, s := range []string{src.Query, src.Cookie, src.Stored} {
		if l, ok := Parse(s); ok {
			return l
		}
	}
	if src.AcceptLanguage != "" {
		tags, _, err := language.ParseAcceptLanguage(src.AcceptLanguage)
		if err == nil && len(tags) > 0 {
			_, idx, conf := matcher.Match(tags...)
			if conf != language.No {
				return Lang(mustBase(supported[idx]))
			}
		}
	}
	return Default
}

func mustBase(t language.Tag) string {
	b, _ := t.Base()
	return b.String()
}
