package ibkr

import (
	"math"
	"strings"

	"github.com/algo-dude/wheeler/internal/domain"
)

// transformPositionsToDomain converts gateway rows to broker-agnostic snapshot entries.
// Rows with a zero position are dropped: the gateway keeps positions closed during the
// day listed until the next session.
func transformPositionsToDomain(rows []positionRow, accountID string) []domain.ExternalPosition {
	result := make([]domain.ExternalPosition, 0, len(rows))
	for _, row := range rows {
		quantity := int64(math.Trunc(float64(row.Position)))
		if quantity == 0 {
			continue
		}

		account := row.AccountID
		if account == "" {
			account = accountID
		}

		pos := domain.ExternalPosition{
			Kind:      domain.InstrumentKind(strings.ToUpper(strings.TrimSpace(row.AssetClass))),
			Symbol:    rowSymbol(row),
			Quantity:  quantity,
			CostBasis: float64(row.AvgCost),
			Account:   account,
		}

		if pos.Kind == domain.InstrumentOption {
			pos.Option = &domain.OptionDetail{
				RightCode:  strings.TrimSpace(row.PutOrCall),
				Strike:     float64(row.Strike),
				Expiration: strings.TrimSpace(row.Expiry),
				Multiplier: int(math.Round(float64(row.Multiplier))),
			}
		}

		result = append(result, pos)
	}
	return result
}

// rowSymbol returns the underlying symbol of a row: ticker, then undSym, then the first
// word of the contract description ("AAPL JUN2024 150 P [...]").
func rowSymbol(row positionRow) string {
	if s := strings.TrimSpace(row.Ticker); s != "" {
		return strings.ToUpper(s)
	}
	if s := strings.TrimSpace(row.UndSym); s != "" {
		return strings.ToUpper(s)
	}
	if fields := strings.Fields(row.ContractDesc); len(fields) > 0 {
		return strings.ToUpper(fields[0])
	}
	return ""
}
