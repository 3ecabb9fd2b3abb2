// Package recovery restores persisted component state when the service restarts.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Recoverable is a component that reloads its state from storage at startup.
type Recoverable interface {
	RecoverState(ctx context.Context) error
}

// Manager runs every registered Recoverable once before serving.
type Manager struct {
	recoverables []Recoverable
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds r to the recovery set.
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
}

// Len returns the number of registered components.
func (m *Manager) Len() int {
	return len(m.recoverables)
}

// RecoverAll recovers every component, continuing past failures, and reports
// how many failed.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Manager.RecoverAll: starting recovery", "components", len(m.recoverables))

	failed := 0
	for _, r := range m.recoverables {
		if err := r.RecoverState(ctx); err != nil {
			slog.Error("Manager.RecoverAll: component recovery failed", "component", fmt.Sprintf("%T", r), "error", err)
			failed++
		}
	}

	slog.Info("Manager.RecoverAll: recovery completed", "recovered", len(m.recoverables)-failed, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", failed, len(m.recoverables))
	}
	return nil
}
