package scan

import "prefscan/internal/model"

// MarkNew returns a copy of matches with the IsNew flag set on every
// match whose ticker is absent from the previous baseline set (the full
// ticker list from the last completed scan, not merely the last
// attempted one).
//
// MarkNew is pure: the input slice and the baseline are not modified,
// and repeated calls with the same arguments produce identical flags.
// Persisting the current ticker set as the next baseline is the
// caller's responsibility.
func MarkNew(matches []model.PatternMatch, baseline map[string]struct{}) []model.PatternMatch {
	out := make([]model.PatternMatch, len(matches))
	for i, m := range matches {
		_, seen := baseline[m.Ticker]
		m.IsNew = !seen
		out[i] = m
	}
	return out
}
