package i18n

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/schoolhub/schoolhub/fs"
)

func newTranslator(t *testing.T) *Translator {
	tr, err := Load(fstest.MapFS{
		"i18n/nl.yaml": {Data: []byte(`
classes:
  no_class: Geen klas
schools:
  created: School {{name}} is aangemaakt
  count:
    one: "{{count}} school"
    other: "{{count}} scholen"
only_nl: Alleen Nederlands
`)},
		"i18n/fr.yaml": {Data: []byte(`
schools:
  count:
    one: "{{count}} école"
    other: "{{count}} écoles"
`)},
		"i18n/en.yaml": {Data: []byte(`
schools:
  created: School {{name}} has been created
  count:
    one: "{{count}} school"
    other: "{{count}} schools"
`)},
	}, "nl")
	require.NoError(t, err)
	return tr
}

func TestTranslator_T(t *testing.T) {
	tr := newTranslator(t)

	tests := []struct {
		name string
		lang string
		key  string
		vars Vars
		want string
	}{
		{name: "plain", lang: "nl", key: "classes.no_class", want: "Geen klas"},
		{name: "interpolation", lang: "en", key: "schools.created", vars: Vars{"name": "Het Kompas"}, want: "School Het Kompas has been created"},
		{name: "missing var kept", lang: "en", key: "schools.created", vars: Vars{"other": 1}, want: "School {{name}} has been created"},
		{name: "fallback to nl", lang: "en", key: "only_nl", want: "Alleen Nederlands"},
		{name: "unknown language", lang: "es", key: "classes.no_class", want: "Geen klas"},
		{name: "missing key", lang: "en", key: "nope.nothing", want: "nope.nothing"},
		{name: "key on a namespace", lang: "nl", key: "schools", want: "schools"},
		{name: "plural one", lang: "nl", key: "schools.count", vars: Vars{"count": 1}, want: "1 school"},
		{name: "plural other", lang: "nl", key: "schools.count", vars: Vars{"count": 2}, want: "2 scholen"},
		{name: "plural zero nl", lang: "nl", key: "schools.count", vars: Vars{"count": 0}, want: "0 scholen"},
		{name: "plural zero fr", lang: "fr", key: "schools.count", vars: Vars{"count": 0}, want: "0 école"},
		{name: "plural without count", lang: "en", key: "schools.count", want: "{{count}} schools"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.T(tt.lang, tt.key, tt.vars))
			// memoised
			assert.Equal(t, tt.want, tr.T(tt.lang, tt.key, tt.vars))
		})
	}
}

func TestTranslator_AddTranslationsResetsCache(t *testing.T) {
	tr := newTranslator(t)
	assert.Equal(t, "Geen klas", tr.T("nl", "classes.no_class"))

	tr.AddTranslations("nl", map[string]interface{}{
		"classes": map[string]interface{}{"no_class": "Zonder klas"},
	})
	assert.Equal(t, "Zonder klas", tr.T("nl", "classes.no_class"))
	assert.Equal(t, "School {{name}} is aangemaakt", tr.T("nl", "schools.created"), "siblings kept")
}

func TestTranslator_Detect(t *testing.T) {
	tr := newTranslator(t)

	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: "nl"},
		{header: "en-GB,en;q=0.9", want: "en"},
		{header: "es-ES,fr;q=0.5,en;q=0.8", want: "en"},
		{header: "de-DE", want: "nl"},
		{header: "en;q=0,fr", want: "fr"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Detect(tt.header))
		})
	}
}

func TestTranslator_Format(t *testing.T) {
	tr := New("nl")
	assert.Equal(t, "1.234,5", tr.FormatNumber("nl", 1234.5, 1))
	assert.Equal(t, "1,234.5", tr.FormatNumber("en", 1234.5, 1))

	date := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, tr.FormatDate("nl", date), "januari")
	assert.Contains(t, tr.FormatDate("en", date), "January")
	assert.Contains(t, tr.FormatDate("xx", date), "januari")
}

func TestLoad_Embedded(t *testing.T) {
	tr, err := Load(appfs.FS, DefaultLanguage)
	require.NoError(t, err)

	for _, lang := range Languages {
		assert.True(t, tr.Supported(lang), lang)
	}
	assert.Equal(t, "Geen klas", tr.T("nl", "classes.no_class"))
	assert.Equal(t, "Too many login attempts. Try again in 1 minute.", tr.T("en", "auth.lockout", Vars{"count": 1}))
	assert.Equal(t, "Te veel inlogpogingen. Probeer het over 15 minuten opnieuw.", tr.T("nl", "auth.lockout", Vars{"count": 15}))
}

func TestLoad_MissingFallback(t *testing.T) {
	_, err := Load(fstest.MapFS{"i18n/en.yaml": {Data: []byte("a: b")}}, "nl")
	assert.Error(t, err)
}
