package ibkr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algo-dude/wheeler/internal/domain"
)

// fakeGateway serves the Client Portal endpoints the client uses
type fakeGateway struct {
	authenticated bool
	accounts      []string
	pages         map[int][]map[string]interface{}
	failPositions bool
	logouts       atomic.Int32
	invalidations atomic.Int32
	staleReads    atomic.Int32
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/auth/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"authenticated": g.authenticated,
			"connected":     g.authenticated,
			"competing":     false,
			"serverInfo":    map[string]string{"serverName": "JifN19053", "serverVersion": "Build 10.25.0p"},
		})
	})
	mux.HandleFunc("/v1/api/portfolio/accounts", func(w http.ResponseWriter, r *http.Request) {
		out := make([]map[string]string, 0, len(g.accounts))
		for _, id := range g.accounts {
			out = append(out, map[string]string{"id": id, "accountId": id})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/v1/api/portfolio/", func(w http.ResponseWriter, r *http.Request) {
		if g.failPositions {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/api/portfolio/"), "/")
		if len(parts) != 3 || parts[1] != "positions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if parts[2] == "invalidate" {
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			g.invalidations.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "success"})
			return
		}
		if g.invalidations.Load() == 0 {
			g.staleReads.Add(1)
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rows := g.pages[page]
		if rows == nil {
			rows = []map[string]interface{}{}
		}
		_ = json.NewEncoder(w).Encode(rows)
	})
	mux.HandleFunc("/v1/api/logout", func(w http.ResponseWriter, r *http.Request) {
		g.logouts.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]bool{"status": true})
	})
	return mux
}

func startGateway(t *testing.T, g *fakeGateway) (*Client, string, int) {
	t.Helper()

	srv := httptest.NewServer(g.handler())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client := NewClient(Config{Scheme: "http", RateLimit: 1000}, zerolog.Nop())
	return client, host, port
}

func TestConnect_Authenticated(t *testing.T) {
	client, host, port := startGateway(t, &fakeGateway{authenticated: true})

	ok, err := client.Connect(context.Background(), host, port, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, client.IsConnected())
	assert.Equal(t, 7, client.ClientID())
}

func TestConnect_NotAuthenticatedIsRefusal(t *testing.T) {
	client, host, port := startGateway(t, &fakeGateway{authenticated: false})

	ok, err := client.Connect(context.Background(), host, port, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, client.IsConnected())
}

func TestConnect_UnreachableIsRefusal(t *testing.T) {
	client := NewClient(Config{Scheme: "http", RateLimit: 1000}, zerolog.Nop())

	// Grab a free port and release it so nothing listens there
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ok, err := client.Connect(context.Background(), "127.0.0.1", port, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnect_InvalidArguments(t *testing.T) {
	client := NewClient(Config{}, zerolog.Nop())

	_, err := client.Connect(context.Background(), "", 4001, 1)
	assert.Error(t, err)

	_, err = client.Connect(context.Background(), "localhost", 0, 1)
	assert.Error(t, err)
}

func TestFetchPositions_NotConnected(t *testing.T) {
	client := NewClient(Config{}, zerolog.Nop())

	_, err := client.FetchPositions(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestFetchPositions_Pages(t *testing.T) {
	full := make([]map[string]interface{}, 0, positionsPerPage)
	for i := 0; i < positionsPerPage; i++ {
		full = append(full, map[string]interface{}{
			"assetClass": "STK", "ticker": fmt.Sprintf("S%03d", i), "position": 10, "avgCost": 1.5,
		})
	}
	g := &fakeGateway{
		authenticated: true,
		accounts:      []string{"U1234567", "U7654321"},
		pages: map[int][]map[string]interface{}{
			0: full,
			1: {{"assetClass": "OPT", "ticker": "AAPL", "position": -1, "avgCost": 350,
				"strike": 150, "expiry": "20240621", "putOrCall": "P", "multiplier": 100}},
		},
	}
	client, host, port := startGateway(t, g)

	ok, err := client.Connect(context.Background(), host, port, 1)
	require.NoError(t, err)
	require.True(t, ok)

	positions, err := client.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, positionsPerPage+1)
	assert.Equal(t, "U1234567", positions[0].Account, "first account is selected")
	assert.Equal(t, domain.InstrumentOption, positions[positionsPerPage].Kind)
}

func TestFetchPositions_InvalidatesCacheBeforePaging(t *testing.T) {
	g := &fakeGateway{
		authenticated: true,
		accounts:      []string{"U1"},
		pages: map[int][]map[string]interface{}{
			0: {{"assetClass": "STK", "ticker": "AAPL", "position": 100, "avgCost": 150}},
		},
	}
	client, host, port := startGateway(t, g)

	_, err := client.Connect(context.Background(), host, port, 1)
	require.NoError(t, err)

	positions, err := client.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int32(1), g.invalidations.Load())
	assert.Equal(t, int32(0), g.staleReads.Load(), "no page is read before the cache is invalidated")

	_, err = client.FetchPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), g.invalidations.Load(), "every fetch invalidates once")
}

func TestFetchPositions_TooManyPagesIsProviderError(t *testing.T) {
	pages := make(map[int][]map[string]interface{}, maxPositionPages+1)
	for p := 0; p < maxPositionPages; p++ {
		rows := make([]map[string]interface{}, 0, positionsPerPage)
		for i := 0; i < positionsPerPage; i++ {
			rows = append(rows, map[string]interface{}{
				"assetClass": "STK", "ticker": fmt.Sprintf("P%02dS%03d", p, i), "position": 1, "avgCost": 1,
			})
		}
		pages[p] = rows
	}
	pages[maxPositionPages] = []map[string]interface{}{
		{"assetClass": "STK", "ticker": "LAST1", "position": 1, "avgCost": 1},
		{"assetClass": "STK", "ticker": "LAST2", "position": 1, "avgCost": 1},
		{"assetClass": "STK", "ticker": "LAST3", "position": 1, "avgCost": 1},
	}
	g := &fakeGateway{authenticated: true, accounts: []string{"U1"}, pages: pages}
	client, host, port := startGateway(t, g)

	_, err := client.Connect(context.Background(), host, port, 1)
	require.NoError(t, err)

	positions, err := client.FetchPositions(context.Background())
	assert.Nil(t, positions, "a truncated snapshot is never returned")

	var provErr *domain.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "fetch positions", provErr.Op)
	assert.Contains(t, err.Error(), "more than 50 pages")
}

func TestFetchPositions_ConfiguredAccountMissing(t *testing.T) {
	g := &fakeGateway{authenticated: true, accounts: []string{"U1"}}
	client, host, port := startGateway(t, g)
	client.cfg.AccountID = "U2"

	_, err := client.Connect(context.Background(), host, port, 1)
	require.NoError(t, err)

	_, err = client.FetchPositions(context.Background())
	var provErr *domain.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "resolve account", provErr.Op)
}

func TestFetchPositions_GatewayFailureIsProviderError(t *testing.T) {
	g := &fakeGateway{authenticated: true, accounts: []string{"U1"}, failPositions: true}
	client, host, port := startGateway(t, g)

	_, err := client.Connect(context.Background(), host, port, 1)
	require.NoError(t, err)

	_, err = client.FetchPositions(context.Background())
	var provErr *domain.ProviderError
	require.True(t, errors.As(err, &provErr))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestTestConnection(t *testing.T) {
	g := &fakeGateway{authenticated: true, accounts: []string{"U1", "U2"}}
	client, host, port := startGateway(t, g)

	result, err := client.TestConnection(context.Background(), domain.ConnectionConfig{Host: host, Port: port, ClientID: 3})
	require.NoError(t, err)
	assert.True(t, result.Connected)
	assert.Equal(t, []string{"U1", "U2"}, result.Accounts)
	assert.Equal(t, "Build 10.25.0p", result.ServerVersion)
	assert.Empty(t, result.Error)
}

func TestTestConnection_Refused(t *testing.T) {
	client, host, port := startGateway(t, &fakeGateway{authenticated: false})

	result, err := client.TestConnection(context.Background(), domain.ConnectionConfig{Host: host, Port: port, ClientID: 1})
	require.NoError(t, err)
	assert.False(t, result.Connected)
	assert.Equal(t, "Failed to connect to IBKR", result.Error)
}

func TestDisconnect(t *testing.T) {
	g := &fakeGateway{authenticated: true}
	client, host, port := startGateway(t, g)

	_, err := client.Connect(context.Background(), host, port, 1)
	require.NoError(t, err)

	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.Equal(t, int32(1), g.logouts.Load())

	// Disconnecting without a session does not call the gateway
	client.Disconnect()
	assert.Equal(t, int32(1), g.logouts.Load())
}
