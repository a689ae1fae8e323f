package testing

import "github.com/algo-dude/wheeler/internal/domain"

// NewOptionFixture returns an option snapshot entry
func NewOptionFixture(symbol, right string, strike float64, expiry string, quantity int64, costBasis float64) domain.ExternalPosition {
	return domain.ExternalPosition{
		Kind:      domain.InstrumentOption,
		Symbol:    symbol,
		Quantity:  quantity,
		CostBasis: costBasis,
		Option: &domain.OptionDetail{
			RightCode:  right,
			Strike:     strike,
			Expiration: expiry,
			Multiplier: domain.DefaultContractMultiplier,
		},
	}
}

// NewShareFixture returns a share snapshot entry
func NewShareFixture(symbol string, quantity int64, costBasis float64) domain.ExternalPosition {
	return domain.ExternalPosition{
		Kind:      domain.InstrumentShare,
		Symbol:    symbol,
		Quantity:  quantity,
		CostBasis: costBasis,
	}
}

// NewSnapshotFixtures returns a small mixed snapshot: a short put, a covered call and its shares
func NewSnapshotFixtures() []domain.ExternalPosition {
	return []domain.ExternalPosition{
		NewOptionFixture("AAPL", "P", 150, "20240621", -2, 350),
		NewOptionFixture("MSFT", "C", 420, "20240719", -1, 512.5),
		NewShareFixture("MSFT", 100, 401.25),
	}
}
