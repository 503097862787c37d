package cycle

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Language is a display language. Only zh-TW and en exist.
type Language string

const (
	LangZhTW Language = "zh-TW"
	LangEn   Language = "en"
)

// DefaultLanguage is used whenever the caller does not specify one.
const DefaultLanguage = LangZhTW

// placeholder is shown in place of a date that is missing or unparseable.
const placeholder = "-"

// The first tag is the matcher's fallback.
var supported = []language.Tag{
	language.MustParse("zh-TW"),
	language.English,
}

var matcher = language.NewMatcher(supported)

// ParseLanguage maps a BCP 47 tag (zh-TW, zh-Hant-TW, en-US, en-GB, ...) onto
// one of the two display languages. Empty, malformed or unsupported tags
// yield DefaultLanguage.
func ParseLanguage(s string) Language {
	s = strings.TrimSpace(s)
	switch Language(s) {
	case "":
		return DefaultLanguage
	case LangZhTW, LangEn:
		return Language(s)
	}

	tag, err := language.Parse(s)
	if err != nil {
		return DefaultLanguage
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No || idx != 1 {
		return DefaultLanguage
	}
	return LangEn
}

// =============================================================================
// LABELS
// =============================================================================

var cycleLabels = map[Language]map[Frequency]string{
	LangZhTW: {
		Monthly:   "每月",
		Quarterly: "每季",
		Yearly:    "每年",
		OneTime:   "一次性",
	},
	LangEn: {
		Monthly:   "Monthly",
		Quarterly: "Quarterly",
		Yearly:    "Yearly",
		OneTime:   "One-time",
	},
}

// CycleLabel returns the short noun phrase for a frequency ("Monthly", "每月").
// Empty and unknown frequencies get the one-time label.
func CycleLabel(f Frequency, lang Language) string {
	labels := cycleLabels[ParseLanguage(string(lang))]
	if label, ok := labels[f.Normalize()]; ok {
		return label
	}
	return labels[OneTime]
}

// CurrentCycleLabel names the cycle instance containing now, e.g.
// "本季 (Q2)" or "This Month (3)". One-time, empty and unknown frequencies
// have no current instance and return ok == false.
func CurrentCycleLabel(f Frequency, lang Language, now time.Time) (string, bool) {
	zh := ParseLanguage(string(lang)) == LangZhTW
	month := int(now.Month())

	switch f.Normalize() {
	case Monthly:
		if zh {
			return fmt.Sprintf("本月 (%d月)", month), true
		}
		return fmt.Sprintf("This Month (%d)", month), true

	case Quarterly:
		q := Quarter(month)
		if zh {
			return fmt.Sprintf("本季 (Q%d)", q), true
		}
		return fmt.Sprintf("This Quarter (Q%d)", q), true

	case Yearly:
		if zh {
			return "本年度", true
		}
		return "This Year", true
	}
	return "", false
}

// =============================================================================
// DATE FORMATTING
// =============================================================================

// Accepted string layouts, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
}

// FormatDate renders a date the way zh-TW (2024/3/1) or en-US (3/1/2024)
// users expect. value may be a time.Time, *time.Time, ISO-8601 string or
// nil; anything missing or unparseable renders as "-".
func FormatDate(value any, lang Language) string {
	t, ok := toTime(value)
	if !ok {
		return placeholder
	}
	if ParseLanguage(string(lang)) == LangEn {
		return fmt.Sprintf("%d/%d/%d", t.Month(), t.Day(), t.Year())
	}
	return fmt.Sprintf("%d/%d/%d", t.Year(), t.Month(), t.Day())
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	case string:
		return parseDate(v)
	case *string:
		if v == nil {
			return time.Time{}, false
		}
		return parseDate(*v)
	}
	return time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
