// Package symbols translates user-facing preferred-stock tickers into
// the spellings understood by the market-data provider and by the
// charting site.
//
// US preferred issues have no universal ticker format: the same series
// appears as "ABR-D", "ABR-PD", "ABR.PRD" or "ABRP-D" depending on the
// venue. The translator applies a deterministic default rule, consults
// a small table of known provider irregularities, and can enumerate
// alternate candidate spellings for probing when the primary guess
// returns no data.
//
// All functions are pure: they always return a value and never fail,
// falling back to echoing the input unchanged when no rule applies.
package symbols

import (
	"strings"
)

// providerOverrides maps tickers with known provider-side
// irregularities directly to their provider spelling. Checked before
// the default rule, exact-string match only.
var providerOverrides = map[string]string{
	"NEE-N": "NEE-PN",
	"ETI-":  "ETI-P",
	"F-D":   "F-PD",
}

// Translator converts tickers between spellings. The zero value is not
// usable; construct with NewTranslator.
type Translator struct {
	// overrides takes precedence over the default rule.
	overrides map[string]string

	// impliedSeries enables the heuristic that treats the last letter
	// of a dash-less 4-5 character ticker as an implied series letter
	// when generating candidate spellings. Tuned empirically; keep
	// configurable.
	impliedSeries bool
}

// Option configures a Translator.
type Option func(*Translator)

// WithOverrides replaces the built-in override table.
func WithOverrides(overrides map[string]string) Option {
	return func(t *Translator) { t.overrides = overrides }
}

// WithImpliedSeries toggles the dash-less implied-series heuristic used
// by Candidates. Enabled by default.
func WithImpliedSeries(enabled bool) Option {
	return func(t *Translator) { t.impliedSeries = enabled }
}

// NewTranslator creates a Translator with the built-in override table
// and the implied-series heuristic enabled.
func NewTranslator(opts ...Option) *Translator {
	t := &Translator{
		overrides:     providerOverrides,
		impliedSeries: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// splitSeries returns the base and series suffix of a dashed ticker.
// ok is false unless the ticker contains exactly one dash with a
// non-empty base.
func splitSeries(ticker string) (base, suffix string, ok bool) {
	parts := strings.Split(ticker, "-")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ToProvider converts a ticker to the provider's spelling.
//
// Default rule: a single dash followed by a one-character series suffix
// gets the literal marker "P" inserted after the dash ("ABR-D" becomes
// "ABR-PD"). Multi-character suffixes pass through with the dash
// preserved. The override table wins over the default rule.
func (t *Translator) ToProvider(ticker string) string {
	if mapped, ok := t.overrides[ticker]; ok {
		return mapped
	}
	if base, suffix, ok := splitSeries(ticker); ok && len(suffix) == 1 {
		return base + "-P" + suffix
	}
	return ticker
}

// ToChart converts a ticker to the charting site's spelling, which
// mirrors the provider rule with "/P" in place of "-P" ("ABR-D" becomes
// "ABR/PD").
func (t *Translator) ToChart(ticker string) string {
	if mapped, ok := t.overrides[ticker]; ok {
		// Override spellings are stored in provider form; the chart
		// site uses a slash where the provider uses a dash.
		return strings.Replace(mapped, "-", "/", 1)
	}
	if base, suffix, ok := splitSeries(ticker); ok && len(suffix) == 1 {
		return base + "/P" + suffix
	}
	return ticker
}

// isLetters reports whether s is non-empty ASCII letters only.
func isLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// Candidates returns the ordered list of provider spellings to probe
// for a ticker, most-likely-correct first, de-duplicated with order
// preserved.
//
// The base/suffix split follows the dash when present. For dash-less
// tickers of length 4-5 ending in a letter, the last character is
// treated as an implied series letter (heuristic, see
// WithImpliedSeries). When a split is known the variants are:
//
//	{base}-P{suffix}, {base}.PR{suffix}, {base}P-{suffix},
//	{base}-{suffix}, {base}{suffix}
//
// plus the default-rule result and the raw input, which always lead
// the list.
func (t *Translator) Candidates(ticker string) []string {
	ordered := []string{t.ToProvider(ticker), ticker}

	base, suffix, ok := splitSeries(ticker)
	if !ok && t.impliedSeries && len(ticker) >= 4 && len(ticker) <= 5 && isLetters(ticker) {
		base, suffix = ticker[:len(ticker)-1], ticker[len(ticker)-1:]
		ok = true
	}

	if ok && base != "" && suffix != "" {
		ordered = append(ordered,
			base+"-P"+suffix,
			base+".PR"+suffix,
			base+"P-"+suffix,
			base+"-"+suffix,
			base+suffix,
		)
	}

	seen := make(map[string]struct{}, len(ordered))
	out := make([]string, 0, len(ordered))
	for _, s := range ordered {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ParseList splits raw ticker-list text on commas and newlines, trims
// whitespace, uppercases and de-duplicates, preserving first-seen
// order. This is the accepted format of user-supplied ticker files.
func ParseList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.ToUpper(strings.TrimSpace(f))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
