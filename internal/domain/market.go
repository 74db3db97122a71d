package domain

import "time"

// Market represents a Polymarket prediction market as discovered through
// metadata polling. Outcomes and their associated CLOB token IDs are kept
// as parallel slices rather than a fixed pair because some neg-risk /
// multi-outcome events carry more than two.
type Market struct {
	MarketID        string
	EventID         *string
	ConditionID     string
	Slug            *string
	Question        string
	Outcomes        []string
	ClobTokenIDs    []string
	NegRisk         bool
	TickSize        float64
	Active          bool
	Closed          bool
	AcceptingOrders bool
	VolumeTotal     *float64
	Liquidity       *float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasToken reports whether tokenID appears among the market's clob token ids.
func (m Market) HasToken(tokenID string) bool {
	for _, t := range m.ClobTokenIDs {
		if t == tokenID {
			return true
		}
	}
	return false
}
