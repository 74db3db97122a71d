package domain

import "time"

// DetectionMethod records how a Resolution's winner was determined.
type DetectionMethod string

const (
	DetectionFinalPrices   DetectionMethod = "final_prices"
	DetectionExplicitField DetectionMethod = "explicit_field"
	DetectionManual        DetectionMethod = "manual"
)

// Resolution records the inferred or confirmed outcome of a market. It is
// keyed on ConditionID and written when a winner is first inferred; a
// later upsert replaces the stored row whatever its detection method, as
// detection methods are not ranked or compared.
type Resolution struct {
	ConditionID     string
	Outcome         *string
	WinnerTokenID   *string
	ResolvedAt      time.Time
	PayoutPrice     *float64
	DetectionMethod DetectionMethod
}
