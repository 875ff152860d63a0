package coordinator

import (
	"context"
	"sync/atomic"

	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// TaskManager reacts to settled settings changes by rescheduling background work.
type TaskManager struct {
	service *Service
	refresh *RefreshJob
	changes func(buffer int) (<-chan models.SettingsSnapshot, func())

	rescheduled atomic.Uint64
	lastVersion atomic.Uint64
}

func newTaskManager(service *Service, refresh *RefreshJob, changes func(int) (<-chan models.SettingsSnapshot, func())) *TaskManager {
	return &TaskManager{service: service, refresh: refresh, changes: changes}
}

// Service returns the shared Service.
func (m *TaskManager) Service() *Service { return m.service }

// Run listens for settings changes until ctx is done or the coordinator closes.
func (m *TaskManager) Run(ctx context.Context) {
	changes, cancel := m.changes(1)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-changes:
			if !ok {
				return
			}
			m.handle(snap)
		}
	}
}

func (m *TaskManager) handle(snap models.SettingsSnapshot) {
	m.lastVersion.Store(snap.Version)
	m.rescheduled.Add(1)
	m.refresh.Trigger(TriggerSettings)
	logger.Debug("Rescheduled refresh for settings version %d (method=%s, madhab=%s)",
		snap.Version, snap.Method, snap.Madhab)
}

// Rescheduled returns how many settings changes triggered a refresh.
func (m *TaskManager) Rescheduled() uint64 {
	return m.rescheduled.Load()
}

// LastVersion returns the settings version of the most recent change handled.
func (m *TaskManager) LastVersion() uint64 {
	return m.lastVersion.Load()
}
