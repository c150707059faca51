// Package pattern implements the bar-series evaluators: the
// range-compression filter, the wick-imbalance scanner and the
// range-containment scanner.
//
// All evaluators share the same shape: they receive one security's
// cleaned, date-ascending daily series and emit zero or more pattern
// matches. Series shorter than an evaluator's minimum are skipped
// silently; illiquid preferred issues hit this constantly and it is not
// an error. Evaluators never mutate the series.
package pattern

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"prefscan/internal/model"
)

// ErrInvalidParams indicates an evaluator parameter set failed
// validation.
var ErrInvalidParams = errors.New("invalid evaluator parameters")

// validate is the shared validator instance for parameter structs.
var validate = validator.New()

// Security identifies one ticker and its resolved spellings, carried
// through to every match the evaluators emit.
type Security struct {
	Ticker         string // Caller's spelling (e.g., "ABR-D")
	ProviderSymbol string // Spelling that returned data
	ChartSymbol    string // Charting-site spelling
}

// Evaluator classifies one security's daily series against a pattern
// definition.
type Evaluator interface {
	// Kind reports which scan family the evaluator belongs to.
	Kind() model.ScanKind

	// Days reports how many daily bars the evaluator wants fetched.
	Days() int

	// Evaluate returns the matches found in the series. The series
	// need not be pre-cleaned; evaluators drop empty rows and apply
	// their own minimum-length gate before any classification.
	Evaluate(sec Security, series model.OHLCSeries) []model.PatternMatch
}

// checkParams runs struct-tag validation on an evaluator parameter set.
func checkParams(params any) error {
	if err := validate.Struct(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
