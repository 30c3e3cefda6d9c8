// Package testutil holds test doubles shared by package tests.
package testutil

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/HyphaGroup/pubctl/internal/launcher"
)

// MockLauncher is a test double for launcher.Launcher.
// It records calls and allows configuring responses for testing.
type MockLauncher struct {
	mu sync.Mutex

	// Configurable responses
	LauncherName string
	ExecResponse *launcher.ExecResult
	ExecError    error

	// InteractiveExitCode is returned by Wait on interactive processes,
	// which exit as soon as they start.
	InteractiveExitCode int
	InteractiveStderr   string
	InteractiveError    error

	// Call tracking
	ExecCalls        []launcher.ExecConfig
	InteractiveCalls []launcher.ExecConfig
	Closed           int
}

var _ launcher.Launcher = (*MockLauncher)(nil)

// NewMockLauncher creates a new mock launcher with sensible defaults.
func NewMockLauncher(t *testing.T) *MockLauncher {
	t.Helper()
	return &MockLauncher{
		LauncherName: "mock",
		ExecResponse: &launcher.ExecResult{},
	}
}

// Exec implements launcher.Launcher.
func (m *MockLauncher) Exec(ctx context.Context, config launcher.ExecConfig) (*launcher.ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExecCalls = append(m.ExecCalls, config)
	if m.ExecError != nil {
		return nil, m.ExecError
	}
	res := *m.ExecResponse
	return &res, nil
}

// ExecInteractive implements launcher.Launcher.
func (m *MockLauncher) ExecInteractive(ctx context.Context, config launcher.ExecConfig) (*launcher.InteractiveExec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InteractiveCalls = append(m.InteractiveCalls, config)
	if m.InteractiveError != nil {
		return nil, m.InteractiveError
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	// the process writes its stderr and exits without a session
	go func() {
		if m.InteractiveStderr != "" {
			_, _ = io.WriteString(stderrW, m.InteractiveStderr)
		}
		_ = stdinR.Close()
		_ = stdoutW.Close()
		_ = stderrW.Close()
	}()

	code := m.InteractiveExitCode
	return launcher.NewInteractiveExec(stdinW, stdoutR, stderrR, func() (int, error) {
		return code, nil
	}), nil
}

// Name implements launcher.Launcher.
func (m *MockLauncher) Name() string {
	return m.LauncherName
}

// Close implements launcher.Launcher.
func (m *MockLauncher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed++
	return nil
}

// ExecCount returns the number of Exec calls.
func (m *MockLauncher) ExecCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExecCalls)
}

// LastExec returns the most recent Exec call.
func (m *MockLauncher) LastExec() launcher.ExecConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ExecCalls) == 0 {
		return launcher.ExecConfig{}
	}
	return m.ExecCalls[len(m.ExecCalls)-1]
}

// CloseCount returns the number of Close calls.
func (m *MockLauncher) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}
