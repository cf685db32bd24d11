package locale

import (
	"strings"

	"golang.org/x/text/language"
)

// Language is one of the closed set of locale tags the application serves.
type Language string

const (
	English            Language = "en"
	ChineseSimplified  Language = "zh-CN"
	ChineseTraditional Language = "zh-TW"
	Japanese           Language = "ja"
	Spanish            Language = "es"
	Korean             Language = "ko"
)

const Default = English

var Supported = []Language{English, ChineseSimplified, ChineseTraditional, Japanese, Spanish, Korean}

// Regional and script variants fold to the nearest supported tag. The table
// is part of the contract: tests assert it, clients rely on it.
var aliases = map[string]Language{
	"zh":      ChineseSimplified,
	"zh-Hans": ChineseSimplified,
	"zh-SG":   ChineseSimplified,
	"zh-Hant": ChineseTraditional,
	"zh-HK":   ChineseTraditional,
	"zh-MO":   ChineseTraditional,
}

func IsSupported(tag string) bool {
	for _, lang := range Supported {
		if string(lang) == tag {
			return true
		}
	}
	return false
}

// ExtractLanguage returns the leading locale segment of path. The match is
// exact and case-sensitive: an unknown first segment is not a locale, so a
// locale-less deep link keeps its real route segment.
func ExtractLanguage(path string) (Language, bool) {
	segment := firstSegment(path)
	if segment == "" || !IsSupported(segment) {
		return "", false
	}
	return Language(segment), true
}

// StripLanguage removes a leading matched locale segment. An empty result
// collapses to "/".
func StripLanguage(path string) string {
	lang, ok := ExtractLanguage(path)
	if !ok {
		if path == "" {
			return "/"
		}
		return path
	}
	rest := strings.TrimPrefix(path, "/"+string(lang))
	if rest == "" || rest == "/" {
		return "/"
	}
	return rest
}

// InjectLanguage strips any existing locale segment and prepends lang. Every
// generated path is locale-prefixed.
func InjectLanguage(path string, lang Language) string {
	rest := StripLanguage(path)
	if rest == "/" {
		return "/" + string(lang)
	}
	return "/" + string(lang) + rest
}

// ResolveDefaultLanguage maps a runtime locale preference to a supported tag:
// exact match, then the alias table, then the primary subtag, then Default.
// Deterministic for a given preference string.
func ResolveDefaultLanguage(pref string) Language {
	pref = strings.TrimSpace(pref)
	if pref == "" {
		return Default
	}
	if lang, ok := match(pref); ok {
		return lang
	}

	tag, err := language.Parse(pref)
	if err != nil {
		return Default
	}
	if lang, ok := match(tag.String()); ok {
		return lang
	}

	base, _ := tag.Base()
	if base.String() == "zh" {
		// Script decides between the two Chinese variants when the region
		// is not in the alias table.
		script, _ := tag.Script()
		if script.String() == "Hant" {
			return ChineseTraditional
		}
		return ChineseSimplified
	}
	if lang, ok := match(base.String()); ok {
		return lang
	}
	return Default
}

func match(tag string) (Language, bool) {
	if IsSupported(tag) {
		return Language(tag), true
	}
	if lang, ok := aliases[tag]; ok {
		return lang, true
	}
	return "", false
}

func firstSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return ""
	}
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}
