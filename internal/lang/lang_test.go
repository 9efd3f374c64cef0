package lang_test

import (
	"testing"

	"github.com/d9705996/clientportal/internal/lang"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]lang.Lang{
		"fr":    lang.French,
		"FR":    lang.French,
		"fr-CA": lang.French,
		"en_US": lang.English,
		"es-MX": lang.Spanish,
	}
	for in, want := range cases {
		got, ok := lang.Parse(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "de", "not a tag", "zz", "xx", "und", "und-CA"} {
		_, ok := lang.Parse(in)
		assert.False(t, ok, in)
	}
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, lang.French, lang.OrDefault(""))
	assert.Equal(t, lang.French, lang.OrDefault("it"))
	assert.Equal(t, lang.Spanish, lang.OrDefault("es"))
	assert.Equal(t, lang.French, lang.OrDefault("und"))
}

func TestResolve_Precedence(t *testing.T) {
	assert.Equal(t, lang.English, lang.Resolve(lang.Sources{Query: "en", Cookie: "es", Stored: "fr"}))
	assert.Equal(t, lang.Spanish, lang.Resolve(lang.Sources{Query: "xx", Cookie: "es", Stored: "en"}))
	assert.Equal(t, lang.English, lang.Resolve(lang.Sources{Stored: "en"}))
}

func TestResolve_AcceptLanguage(t *testing.T) {
	assert.Equal(t, lang.Spanish, lang.Resolve(lang.Sources{AcceptLanguage: "es-ES,es;q=0.9,en;q=0.5"}))
	assert.Equal(t, lang.French, lang.Resolve(lang.Sources{AcceptLanguage: "ja"}))
}

func TestResolve_Default(t *testing.T) {
	assert.Equal(t, lang.Default, lang.Resolve(lang.Sources{}))
}
