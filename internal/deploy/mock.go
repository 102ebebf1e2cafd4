package deploy

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dockhand/dockhand/internal/api"
)

// MockStack is one stack held by the in-memory mock target.
type MockStack struct {
	ID         int               `json:"id"`
	Name       string            `json:"name"`
	EndpointID int               `json:"endpoint_id"`
	Manifest   string            `json:"compose_content"`
	Env        map[string]string `json:"env,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Status     string            `json:"status"`
}

// MockStats summarizes the mock target state.
type MockStats struct {
	TotalStacks int `json:"total_stacks"`
}

// MockClient simulates the deployment target in memory. Useful for
// development and tests without real infrastructure.
type MockClient struct {
	Logger *slog.Logger

	mu          sync.Mutex
	stacks      map[int]*MockStack
	nextStackID int
	forcedErr   map[int]string
}

// NewMockClient creates an empty mock target.
func NewMockClient(logger *slog.Logger) *MockClient {
	return &MockClient{
		Logger:      logger,
		stacks:      make(map[int]*MockStack),
		nextStackID: 1,
		forcedErr:   make(map[int]string),
	}
}

func (m *MockClient) Mock() bool { return true }

// DeployStack records the stack in memory, honoring any forced error for
// the endpoint.
func (m *MockClient) DeployStack(_ context.Context, req StackRequest) (*api.DeployResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg, forced := m.forcedErr[req.EndpointID]; forced && msg != "" {
		if m.Logger != nil {
			m.Logger.Warn("Mock deployment error (forced)", "error", msg)
		}
		return &api.DeployResponse{
			Success: false,
			Message: "Mock error: " + msg,
			Target:  map[string]any{"error": msg},
		}, nil
	}

	stackID := m.nextStackID
	m.nextStackID++
	m.stacks[stackID] = &MockStack{
		ID:         stackID,
		Name:       req.Name,
		EndpointID: req.EndpointID,
		Manifest:   req.Manifest,
		Env:        req.Env,
		CreatedAt:  time.Now().UTC(),
		Status:     "running",
	}

	if m.Logger != nil {
		m.Logger.Info("Mock deployed stack", "stack", req.Name, "stack_id", stackID)
	}
	return &api.DeployResponse{
		Success: true,
		StackID: stackID,
		Message: "Stack deployed successfully (mock)",
		Target:  map[string]any{"Id": stackID, "Name": req.Name, "Status": "running"},
	}, nil
}

// Validate always succeeds for the mock.
func (m *MockClient) Validate(context.Context) bool { return true }

// ListStacks returns all recorded stacks ordered by id.
func (m *MockClient) ListStacks() []*MockStack {
	m.mu.Lock()
	defer m.mu.Unlock()

	stacks := make([]*MockStack, 0, len(m.stacks))
	for _, stack := range m.stacks {
		stacks = append(stacks, stack)
	}
	sort.Slice(stacks, func(i, j int) bool { return stacks[i].ID < stacks[j].ID })
	return stacks
}

// ForceError makes the next deploys on an endpoint fail with message.
// An empty message clears the forced error.
func (m *MockClient) ForceError(endpointID int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if message == "" {
		delete(m.forcedErr, endpointID)
	} else {
		m.forcedErr[endpointID] = message
	}
}

// Reset clears all recorded stacks and forced errors.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stacks = make(map[int]*MockStack)
	m.forcedErr = make(map[int]string)
	m.nextStackID = 1
}

// Stats reports summary counters.
func (m *MockClient) Stats() MockStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MockStats{TotalStacks: len(m.stacks)}
}

var _ Client = (*MockClient)(nil)
var _ Client = (*HTTPClient)(nil)
