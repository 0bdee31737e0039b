// Package i18n resolves display strings for the injected control and the
// settings surface. The locale table is embedded at build time; resolution
// order is manual selection, then detected browser language, then the
// default locale. Missing keys fall back to the default locale's value, and
// as a last resort to the raw key name so a broken table is visible rather
// than silent.
package i18n

import (
	_ "embed"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales.yaml
var localesYAML []byte

// Strings is the resolved display-string set for one page view.
type Strings struct {
	ButtonText      string
	ButtonTitle     string
	ErrorNoRecordID string

	SettingsTitle         string
	SettingsLanguageLabel string
	SettingsModeAuto      string
	SettingsModeManual    string
	SettingsSaved         string
}

type table struct {
	Default string                       `yaml:"default"`
	Locales map[string]map[string]string `yaml:"locales"`
}

var (
	loadOnce sync.Once
	loaded   table
)

func load() table {
	loadOnce.Do(func() {
		if err := yaml.Unmarshal(localesYAML, &loaded); err != nil {
			// The table is embedded and covered by tests; an unmarshal
			// failure here means a broken build, not a runtime condition.
			loaded = table{Default: "en", Locales: map[string]map[string]string{}}
		}
		if loaded.Default == "" {
			loaded.Default = "en"
		}
	})
	return loaded
}

// Available returns the supported language codes, sorted.
func Available() []string {
	t := load()
	codes := make([]string, 0, len(t.Locales))
	for c := range t.Locales {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Supported reports whether code resolves to a locale in the table.
func Supported(code string) bool {
	t := load()
	_, ok := t.Locales[normalize(code)]
	return ok
}

// normalize lowercases a language code and strips the region subtag:
// "en-US" and "en_US" both become "en".
func normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, sep := range []string{"-", "_"} {
		if i := strings.Index(code, sep); i > 0 {
			code = code[:i]
		}
	}
	return code
}

func get(lang, key string) string {
	t := load()
	if m, ok := t.Locales[lang]; ok {
		if v, ok := m[key]; ok && v != "" {
			return v
		}
	}
	if m, ok := t.Locales[t.Default]; ok {
		if v, ok := m[key]; ok && v != "" {
			return v
		}
	}
	return key
}

// ForLanguage returns the string set for a language code, applying per-key
// fallback to the default locale.
func ForLanguage(code string) Strings {
	lang := normalize(code)
	if !Supported(lang) {
		lang = load().Default
	}
	return Strings{
		ButtonText:      get(lang, "buttonText"),
		ButtonTitle:     get(lang, "buttonTitle"),
		ErrorNoRecordID: get(lang, "errorNoRecordId"),

		SettingsTitle:         get(lang, "settingsTitle"),
		SettingsLanguageLabel: get(lang, "settingsLanguageLabel"),
		SettingsModeAuto:      get(lang, "settingsModeAuto"),
		SettingsModeManual:    get(lang, "settingsModeManual"),
		SettingsSaved:         get(lang, "settingsSaved"),
	}
}

// Resolve picks the effective language: manual selection when mode is
// "manual" and the selection is supported, otherwise the detected browser
// language, otherwise the default locale.
func Resolve(mode, manual, browser string) Strings {
	if mode == "manual" && Supported(manual) {
		return ForLanguage(manual)
	}
	return ForLanguage(browser)
}

// BrowserLanguage is the process-level language fallback used when the
// settings store and the page are both unavailable: the LANG / LC_ALL
// environment, normalised to a bare code.
func BrowserLanguage() string {
	for _, env := range []string{"LC_ALL", "LANG"} {
		if v := os.Getenv(env); v != "" {
			// "de_DE.UTF-8" → "de"
			if i := strings.IndexAny(v, "._"); i > 0 {
				v = v[:i]
			}
			return normalize(v)
		}
	}
	return load().Default
}
