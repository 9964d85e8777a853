package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const stateFileName = "watch_state.yaml"

// TargetState contains the outcome of the last scan of a watched target
type TargetState struct {
	LastRunTime    time.Time `yaml:"last_run_time"`
	LastRunSuccess bool      `yaml:"last_run_success"`
	PagesCrawled   int       `yaml:"pages_crawled"`
	Score          int       `yaml:"score"`
	MainIssue      string    `yaml:"main_issue,omitempty"`
	ReportID       string    `yaml:"report_id,omitempty"`
	ErrorMessage   string    `yaml:"error_message,omitempty"`
}

// State is the persisted state of the watch scheduler
type State struct {
	Targets   map[string]TargetState `yaml:"targets"`
	UpdatedAt time.Time              `yaml:"updated_at"`
}

// StateManager handles persisting and loading watch state.
// An empty state dir keeps the state in memory only.
type StateManager struct {
	stateDir  string
	statePath string
	state     State
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	m := &StateManager{
		stateDir: stateDir,
		state:    State{Targets: make(map[string]TargetState)},
	}
	if stateDir != "" {
		m.statePath = filepath.Join(stateDir, stateFileName)
	}
	return m
}

// Load loads the state from disk. A missing file starts fresh.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = State{Targets: make(map[string]TargetState)}
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := yaml.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	if m.state.Targets == nil {
		m.state.Targets = make(map[string]TargetState)
	}
	return nil
}

// Save saves the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()
	if m.statePath == "" {
		return nil
	}
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := yaml.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// GetTargetState returns the state for a specific target
func (m *StateManager) GetTargetState(target string) (TargetState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Targets[target]
	return state, ok
}

// UpdateTargetState replaces the state for a target, stamping the run time
func (m *StateManager) UpdateTargetState(target string, state TargetState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state.LastRunTime.IsZero() {
		state.LastRunTime = time.Now()
	}
	m.state.Targets[target] = state
}

// ShouldRun checks if a target is due based on the interval
func (m *StateManager) ShouldRun(target string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Targets[target]
	if !ok {
		return true
	}
	return time.Since(state.LastRunTime) >= interval
}

// GetNextRunTime returns when the target should next run
func (m *StateManager) GetNextRunTime(target string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Targets[target]
	if !ok {
		return time.Now()
	}
	return state.LastRunTime.Add(interval)
}
