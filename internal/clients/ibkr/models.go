package ibkr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// authStatus is the body of POST /iserver/auth/status
type authStatus struct {
	Authenticated bool   `json:"authenticated"`
	Connected     bool   `json:"connected"`
	Competing     bool   `json:"competing"`
	Message       string `json:"message"`
	ServerInfo    struct {
		ServerName    string `json:"serverName"`
		ServerVersion string `json:"serverVersion"`
	} `json:"serverInfo"`
}

// account is one entry of GET /portfolio/accounts
type account struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
}

func (a account) identifier() string {
	if a.ID != "" {
		return a.ID
	}
	return a.AccountID
}

// positionRow is one entry of GET /portfolio/{accountId}/positions/{page}
type positionRow struct {
	AccountID    string    `json:"acctId"`
	ConID        int64     `json:"conid"`
	ContractDesc string    `json:"contractDesc"`
	AssetClass   string    `json:"assetClass"`
	Ticker       string    `json:"ticker"`
	Position     flexFloat `json:"position"`
	AvgCost      flexFloat `json:"avgCost"`
	AvgPrice     flexFloat `json:"avgPrice"`
	Currency     string    `json:"currency"`
	Strike       flexFloat `json:"strike"`
	Expiry       string    `json:"expiry"`
	PutOrCall    string    `json:"putOrCall"`
	Multiplier   flexFloat `json:"multiplier"`
	UndSym       string    `json:"undSym"`
}

// flexFloat decodes numbers the gateway sometimes sends as strings ("150.0", "")
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
