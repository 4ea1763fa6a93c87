// Package i18n translates the messages emitted by the API into the supported languages.
package i18n

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/de"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/fr"
	"github.com/go-playground/locales/nl"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLanguage = "nl"
	packDir         = "i18n"
)

var (
	Languages = []string{"nl", "en", "de", "fr"}

	varRegex = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
)

// Vars are the interpolation variables of a message. "count" also selects the plural form.
type Vars map[string]interface{}

type Translator struct {
	mu       sync.RWMutex
	packs    map[string]map[string]interface{}
	locales  map[string]locales.Translator
	fallback string
	cache    map[string]string
}

func New(fallback string) *Translator {
	if fallback == "" {
		fallback = DefaultLanguage
	}
	return &Translator{
		packs: make(map[string]map[string]interface{}),
		locales: map[string]locales.Translator{
			"nl": nl.New(),
			"en": en.New(),
			"de": de.New(),
			"fr": fr.New(),
		},
		fallback: fallback,
		cache:    make(map[string]string),
	}
}

// Load reads the `i18n/<lang>.yaml` pack of every supported language found in fsys.
func Load(fsys fs.FS, fallback string) (*Translator, error) {
	tr := New(fallback)
	for _, lang := range Languages {
		data, err := fs.ReadFile(fsys, path.Join(packDir, lang+".yaml"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, errors.Wrapf(err, "reading %s pack", lang)
		}
		pack := make(map[string]interface{})
		if err = yaml.Unmarshal(data, &pack); err != nil {
			return nil, errors.Wrapf(err, "parsing %s pack", lang)
		}
		tr.AddTranslations(lang, pack)
	}
	if _, ok := tr.packs[tr.fallback]; !ok {
		return nil, errors.Errorf("missing %s pack", tr.fallback)
	}
	return tr, nil
}

// AddTranslations merges translations into the pack of lang.
func (tr *Translator) AddTranslations(lang string, translations map[string]interface{}) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	pack, ok := tr.packs[lang]
	if !ok {
		pack = make(map[string]interface{})
		tr.packs[lang] = pack
	}
	merge(pack, translations)
	tr.cache = make(map[string]string)
}

func merge(dst, src map[string]interface{}) {
	for k, v := range src {
		if sub, ok := v.(map[string]interface{}); ok {
			if dsub, ok := dst[k].(map[string]interface{}); ok {
				merge(dsub, sub)
				continue
			}
			cp := make(map[string]interface{}, len(sub))
			merge(cp, sub)
			dst[k] = cp
			continue
		}
		dst[k] = v
	}
}

// Supported reports whether lang has a pack.
func (tr *Translator) Supported(lang string) bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	_, ok := tr.packs[lang]
	return ok
}

// Pack returns a copy of the pack of lang, or nil when lang has none.
func (tr *Translator) Pack(lang string) map[string]interface{} {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	pack, ok := tr.packs[lang]
	if !ok {
		return nil
	}
	cp := make(map[string]interface{}, len(pack))
	merge(cp, pack)
	return cp
}

// T translates the dotted key (`schools.created`) into lang.
// A missing key falls back to the default language, then to the key itself.
func (tr *Translator) T(lang, key string, vars ...Vars) string {
	var v Vars
	if len(vars) > 0 {
		v = vars[0]
	}
	ck := cacheKey(lang, key, v)

	tr.mu.RLock()
	if s, ok := tr.cache[ck]; ok {
		tr.mu.RUnlock()
		return s
	}
	s, found := tr.lookup(lang, key, v)
	if !found && lang != tr.fallback {
		s, found = tr.lookup(tr.fallback, key, v)
	}
	tr.mu.RUnlock()

	if !found {
		return key
	}
	s = interpolate(s, v)

	tr.mu.Lock()
	tr.cache[ck] = s
	tr.mu.Unlock()
	return s
}

func (tr *Translator) lookup(lang, key string, vars Vars) (string, bool) {
	var node interface{} = tr.packs[lang]
	if node == nil {
		return "", false
	}
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]interface{})
		if !ok {
			return "", false
		}
		if node, ok = m[part]; !ok {
			return "", false
		}
	}

	switch val := node.(type) {
	case string:
		return val, true
	case map[string]interface{}:
		form := tr.pluralForm(lang, vars)
		if s, ok := val[form].(string); ok {
			return s, true
		}
		if s, ok := val["other"].(string); ok {
			return s, true
		}
	}
	return "", false
}

func (tr *Translator) pluralForm(lang string, vars Vars) string {
	count, ok := toFloat(vars["count"])
	if !ok {
		return "other"
	}
	loc, ok := tr.locales[lang]
	if !ok {
		loc = tr.locales[DefaultLanguage]
	}
	var digits uint64
	if count != float64(int64(count)) {
		digits = 1
	}
	switch loc.CardinalPluralRule(count, digits) {
	case locales.PluralRuleZero:
		return "zero"
	case locales.PluralRuleOne:
		return "one"
	case locales.PluralRuleTwo:
		return "two"
	case locales.PluralRuleFew:
		return "few"
	case locales.PluralRuleMany:
		return "many"
	}
	return "other"
}

func interpolate(s string, vars Vars) string {
	if len(vars) == 0 {
		return s
	}
	return varRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := varRegex.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return fmt.Sprint(val)
		}
		return match
	})
}

func cacheKey(lang, key string, vars Vars) string {
	if len(vars) == 0 {
		return lang + "|" + key
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(lang + "|" + key)
	for _, name := range names {
		fmt.Fprintf(&b, "|%s=%v", name, vars[name])
	}
	return b.String()
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func (tr *Translator) locale(lang string) locales.Translator {
	if loc, ok := tr.locales[lang]; ok {
		return loc
	}
	return tr.locales[tr.fallback]
}

// FormatNumber formats n with the separators of lang.
func (tr *Translator) FormatNumber(lang string, n float64, decimals uint64) string {
	return tr.locale(lang).FmtNumber(n, decimals)
}

// FormatDate formats t as a long date of lang (20 januari 2024).
func (tr *Translator) FormatDate(lang string, t time.Time) string {
	return tr.locale(lang).FmtDateLong(t)
}

// Detect picks the best supported language of an Accept-Language header.
func (tr *Translator) Detect(acceptLanguage string) string {
	type candidate struct {
		lang string
		q    float64
	}
	var candidates []candidate
	for _, part := range strings.Split(acceptLanguage, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		q := 1.0
		if i := strings.Index(part, ";"); i >= 0 {
			if param := strings.TrimSpace(part[i+1:]); strings.HasPrefix(param, "q=") {
				if f, err := strconv.ParseFloat(param[2:], 64); err == nil {
					q = f
				}
			}
			part = part[:i]
		}
		lang := strings.ToLower(strings.SplitN(strings.TrimSpace(part), "-", 2)[0])
		candidates = append(candidates, candidate{lang: lang, q: q})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].q > candidates[j].q })

	for _, c := range candidates {
		if c.q > 0 && tr.Supported(c.lang) {
			return c.lang
		}
	}
	return tr.fallback
}
