package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/interfaces"
)

// Manager aggregates the storage implementations over one Badger database
type Manager struct {
	db          *BadgerDB
	runs        *RunStorage
	reports     interfaces.ReportStorage
	deadLetters interfaces.DeadLetterStorage
	kv          interfaces.KeyValueStorage
}

// NewManager opens the database and wires up the storage implementations
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:          db,
		runs:        NewRunStorage(db, logger),
		reports:     NewReportStorage(db, logger),
		deadLetters: NewDeadLetterStorage(db, logger),
		kv:          NewKVStorage(db, logger),
	}, nil
}

var _ interfaces.StorageManager = (*Manager)(nil)

// DB exposes the underlying connection for the queue layer, which shares the
// same Badger instance but bypasses badgerhold for its key scheme.
func (m *Manager) DB() *BadgerDB {
	return m.db
}

func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.runs
}

func (m *Manager) InvocationStorage() interfaces.InvocationStorage {
	return m.runs
}

func (m *Manager) ReportStorage() interfaces.ReportStorage {
	return m.reports
}

func (m *Manager) DeadLetterStorage() interfaces.DeadLetterStorage {
	return m.deadLetters
}

func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
