// Package i18n holds the bot's user-facing texts, one YAML file per language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Translator resolves message keys to localized text.
type Translator struct {
	lang  language.Tag
	texts map[string]string
}

// NewTranslator loads the locale for lang from fsys (usually LocalesFS).
// Regional tags fall back to their base language, so "es-AR" reads es.yaml
// when there is no es-AR.yaml.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("i18n: language %q: %w", lang, err)
	}
	candidates := []string{tag.String()}
	if base, conf := tag.Base(); conf != language.No && base.String() != tag.String() {
		candidates = append(candidates, base.String())
	}
	for _, name := range candidates {
		data, err := fs.ReadFile(fsys, path.Join("locales", name+".yaml"))
		if err != nil {
			continue
		}
		tr, err := parseLocale(data)
		if err != nil {
			return nil, fmt.Errorf("i18n: %s.yaml: %w", name, err)
		}
		tr.lang = tag
		return tr, nil
	}
	return nil, fmt.Errorf("i18n: no locale for %q (tried %v)", lang, candidates)
}

func parseLocale(data []byte) (*Translator, error) {
	texts := map[string]string{}
	if err := yaml.Unmarshal(data, &texts); err != nil {
		return nil, err
	}
	return &Translator{lang: language.Und, texts: texts}, nil
}

// Language is the tag the translator was asked for.
func (t *Translator) Language() language.Tag { return t.lang }

// T returns the text for key, formatted with args. Unknown keys come back as is.
func (t *Translator) T(key string, args ...any) string {
	text, ok := t.texts[key]
	switch {
	case !ok:
		return key
	case len(args) == 0:
		return text
	}
	return fmt.Sprintf(text, args...)
}

// Has reports whether key is defined.
func (t *Translator) Has(key string) bool {
	_, ok := t.texts[key]
	return ok
}
