package storage

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	entries   map[string]string
	updatedAt time.Time
}

// InMemoryStorage keeps session records in process memory. Records are lost
// on restart, which matches the lifetime of a browser-session cookie closely
// enough for a single instance.
type InMemoryStorage struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	now     func() time.Time
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		records: make(map[string]*memoryRecord),
		now:     time.Now,
	}
}

func (inMem *InMemoryStorage) GetStorageType() string {
	return "inmemory"
}

func (inMem *InMemoryStorage) Get(ctx context.Context, sessionID string, key string) (string, bool, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	record, ok := inMem.records[sessionID]
	if !ok {
		return "", false, nil
	}
	value, ok := record.entries[key]
	return value, ok, nil
}

func (inMem *InMemoryStorage) Set(ctx context.Context, sessionID string, key string, value string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	record, ok := inMem.records[sessionID]
	if !ok {
		record = &memoryRecord{entries: make(map[string]string)}
		inMem.records[sessionID] = record
	}
	record.entries[key] = value
	record.updatedAt = inMem.now()
	return nil
}

func (inMem *InMemoryStorage) Delete(ctx context.Context, sessionID string, key string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	record, ok := inMem.records[sessionID]
	if !ok {
		return nil
	}
	delete(record.entries, key)
	if len(record.entries) == 0 {
		delete(inMem.records, sessionID)
	}
	return nil
}

func (inMem *InMemoryStorage) Clear(ctx context.Context, sessionID string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	delete(inMem.records, sessionID)
	return nil
}

// PurgeStale drops every record not written since before.
func (inMem *InMemoryStorage) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	var purged int64
	for sessionID, record := range inMem.records {
		if record.updatedAt.Before(before) {
			delete(inMem.records, sessionID)
			purged++
		}
	}
	return purged, nil
}

func (inMem *InMemoryStorage) Close() error {
	return nil
}
