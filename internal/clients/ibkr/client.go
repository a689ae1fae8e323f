// Package ibkr provides a client for the Interactive Brokers Client Portal gateway.
package ibkr

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/algo-dude/wheeler/internal/domain"
)

const (
	apiPrefix        = "/v1/api"
	userAgent        = "wheeler-ibkr-sync"
	positionsPerPage = 100
	maxPositionPages = 50
	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 5 // requests per second; the gateway throttles at 10
)

// Config configures the gateway client
type Config struct {
	Scheme    string        // "https" (gateway default) or "http"
	Insecure  bool          // skip TLS verification for the gateway's self-signed certificate
	AccountID string        // empty selects the first account
	Timeout   time.Duration // per-request HTTP timeout
	RateLimit int           // requests per second
}

// Client is a session against one Client Portal gateway. Implements domain.SnapshotProvider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger

	mu        sync.RWMutex
	baseURL   string
	connected bool
	clientID  int
	accountID string
}

// NewClient creates a disconnected client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // gateway ships a self-signed cert
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		log:        log.With().Str("client", "ibkr").Logger(),
	}
}

// gatewayURL builds the API root for host:port
func (c *Client) gatewayURL(host string, port int) string {
	return fmt.Sprintf("%s://%s%s", c.cfg.Scheme, net.JoinHostPort(host, strconv.Itoa(port)), apiPrefix)
}

// Connect checks the gateway session at host:port. It reports false without an error when
// the gateway is unreachable or the brokerage session is not authenticated.
func (c *Client) Connect(ctx context.Context, host string, port, clientID int) (bool, error) {
	if host == "" {
		return false, fmt.Errorf("gateway host is required")
	}
	if port <= 0 || port > 65535 {
		return false, fmt.Errorf("invalid gateway port: %d", port)
	}

	baseURL := c.gatewayURL(host, port)
	log := c.log.With().Str("gateway", baseURL).Int("client_id", clientID).Logger()

	var status authStatus
	if err := c.do(ctx, baseURL, http.MethodPost, "/iserver/auth/status", nil, &status); err != nil {
		log.Warn().Err(err).Msg("IBKR gateway unreachable")
		c.setSession("", false, 0)
		return false, nil
	}

	if !status.Authenticated || !status.Connected {
		log.Warn().
			Bool("authenticated", status.Authenticated).
			Bool("connected", status.Connected).
			Bool("competing", status.Competing).
			Str("message", status.Message).
			Msg("IBKR session not authenticated")
		c.setSession("", false, 0)
		return false, nil
	}

	c.setSession(baseURL, true, clientID)
	log.Info().Str("server_version", status.ServerInfo.ServerVersion).Msg("Connected to IBKR gateway")
	return true, nil
}

func (c *Client) setSession(baseURL string, connected bool, clientID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
	c.connected = connected
	c.clientID = clientID
	c.accountID = ""
}

// IsConnected reports whether a session is established
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// session returns the current base URL, or ErrNotConnected
func (c *Client) session() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return "", domain.ErrNotConnected
	}
	return c.baseURL, nil
}

// FetchPositions returns every position of the selected account
func (c *Client) FetchPositions(ctx context.Context) ([]domain.ExternalPosition, error) {
	baseURL, err := c.session()
	if err != nil {
		return nil, err
	}

	accountID, err := c.resolveAccount(ctx, baseURL)
	if err != nil {
		return nil, &domain.ProviderError{Op: "resolve account", Err: err}
	}

	// The gateway caches positions per account; a stale cache can hide closures
	invalidatePath := fmt.Sprintf("/portfolio/%s/positions/invalidate", accountID)
	if err := c.do(ctx, baseURL, http.MethodPost, invalidatePath, nil, nil); err != nil {
		c.log.Warn().Err(err).Str("account", accountID).Msg("Failed to invalidate position cache")
	}

	var rows []positionRow
	complete := false
	for page := 0; page < maxPositionPages; page++ {
		var batch []positionRow
		path := fmt.Sprintf("/portfolio/%s/positions/%d", accountID, page)
		if err := c.do(ctx, baseURL, http.MethodGet, path, nil, &batch); err != nil {
			return nil, &domain.ProviderError{Op: "fetch positions", Err: err}
		}
		rows = append(rows, batch...)
		if len(batch) < positionsPerPage {
			complete = true
			break
		}
	}
	if !complete {
		return nil, &domain.ProviderError{
			Op:  "fetch positions",
			Err: fmt.Errorf("more than %d pages of positions", maxPositionPages),
		}
	}

	positions := transformPositionsToDomain(rows, accountID)
	c.log.Info().
		Str("account", accountID).
		Int("rows", len(rows)).
		Int("positions", len(positions)).
		Msg("Fetched IBKR positions")

	return positions, nil
}

// resolveAccount returns the configured account, or the first one the gateway lists.
// The gateway requires /portfolio/accounts before any other portfolio endpoint.
func (c *Client) resolveAccount(ctx context.Context, baseURL string) (string, error) {
	c.mu.RLock()
	cached := c.accountID
	c.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	accounts, err := c.listAccounts(ctx, baseURL)
	if err != nil {
		return "", err
	}

	selected := ""
	if c.cfg.AccountID != "" {
		for _, id := range accounts {
			if id == c.cfg.AccountID {
				selected = id
				break
			}
		}
		if selected == "" {
			return "", fmt.Errorf("account %s not available on gateway", c.cfg.AccountID)
		}
	} else if len(accounts) > 0 {
		selected = accounts[0]
	}
	if selected == "" {
		return "", errors.New("gateway returned no accounts")
	}

	c.mu.Lock()
	if c.baseURL == baseURL {
		c.accountID = selected
	}
	c.mu.Unlock()

	return selected, nil
}

func (c *Client) listAccounts(ctx context.Context, baseURL string) ([]string, error) {
	var accounts []account
	if err := c.do(ctx, baseURL, http.MethodGet, "/portfolio/accounts", nil, &accounts); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if id := a.identifier(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// TestConnection connects to the given endpoint and reports its accounts
func (c *Client) TestConnection(ctx context.Context, cfg domain.ConnectionConfig) (*domain.ConnectionTestResult, error) {
	connected, err := c.Connect(ctx, cfg.Host, cfg.Port, cfg.ClientID)
	if err != nil {
		return nil, err
	}
	if !connected {
		return &domain.ConnectionTestResult{Connected: false, Error: "Failed to connect to IBKR"}, nil
	}

	baseURL, err := c.session()
	if err != nil {
		return nil, err
	}

	result := &domain.ConnectionTestResult{Connected: true}

	var status authStatus
	if err := c.do(ctx, baseURL, http.MethodPost, "/iserver/auth/status", nil, &status); err == nil {
		result.ServerVersion = status.ServerInfo.ServerVersion
	}

	accounts, err := c.listAccounts(ctx, baseURL)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.Accounts = accounts

	return result, nil
}

// Disconnect logs the gateway session out (best effort) and drops it
func (c *Client) Disconnect() {
	c.mu.RLock()
	baseURL, connected := c.baseURL, c.connected
	c.mu.RUnlock()

	if connected {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.do(ctx, baseURL, http.MethodPost, "/logout", nil, nil); err != nil {
			c.log.Warn().Err(err).Msg("IBKR logout failed")
		}
	}

	c.setSession("", false, 0)
	c.log.Info().Msg("Disconnected from IBKR")
}

// ClientID returns the client id recorded for the current session
func (c *Client) ClientID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}
