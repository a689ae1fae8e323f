package testing

import (
	"context"
	"sync"

	"github.com/algo-dude/wheeler/internal/domain"
)

// MockSnapshotProvider is a mock implementation of domain.SnapshotProvider for testing
type MockSnapshotProvider struct {
	mu         sync.RWMutex
	connected  bool
	refuse     bool
	connectErr error
	positions  []domain.ExternalPosition
	fetchErr   error
	fetchGate  chan struct{}

	ConnectCalls    int
	FetchCalls      int
	DisconnectCalls int
	LastHost        string
	LastPort        int
	LastClientID    int
}

// NewMockSnapshotProvider creates a disconnected mock provider that accepts connections
func NewMockSnapshotProvider() *MockSnapshotProvider {
	return &MockSnapshotProvider{}
}

// SetPositions sets the snapshot to return
func (m *MockSnapshotProvider) SetPositions(positions []domain.ExternalPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = positions
}

// SetConnected forces the session flag
func (m *MockSnapshotProvider) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// SetRefuse makes Connect report a refused session
func (m *MockSnapshotProvider) SetRefuse(refuse bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refuse = refuse
}

// SetConnectError sets the error Connect returns
func (m *MockSnapshotProvider) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// SetFetchError sets the error FetchPositions returns
func (m *MockSnapshotProvider) SetFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

// BlockFetch makes FetchPositions wait until the returned channel is closed or ctx is done
func (m *MockSnapshotProvider) BlockFetch() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchGate = make(chan struct{})
	return m.fetchGate
}

// Connect records the call and reports the configured outcome
func (m *MockSnapshotProvider) Connect(_ context.Context, host string, port, clientID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectCalls++
	m.LastHost, m.LastPort, m.LastClientID = host, port, clientID
	if m.connectErr != nil {
		return false, m.connectErr
	}
	if m.refuse {
		return false, nil
	}
	m.connected = true
	return true, nil
}

// IsConnected returns the session flag
func (m *MockSnapshotProvider) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// FetchPositions returns the configured snapshot
func (m *MockSnapshotProvider) FetchPositions(ctx context.Context) ([]domain.ExternalPosition, error) {
	m.mu.Lock()
	m.FetchCalls++
	gate := m.fetchGate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &domain.ProviderError{Op: "fetch positions", Err: ctx.Err()}
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return nil, domain.ErrNotConnected
	}
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]domain.ExternalPosition, len(m.positions))
	copy(out, m.positions)
	return out, nil
}

// Disconnect clears the session flag
func (m *MockSnapshotProvider) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisconnectCalls++
	m.connected = false
}

// Calls returns connect, fetch and disconnect call counts
func (m *MockSnapshotProvider) Calls() (connect, fetch, disconnect int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConnectCalls, m.FetchCalls, m.DisconnectCalls
}
