package datastore

import (
	"sync"

	"github.com/rs/zerolog"
)

// KeyMutexManager hands out one mutex per cache file so that concurrent
// writers of the same key are serialized while distinct keys proceed in parallel
type KeyMutexManager struct {
	mutexes map[string]*sync.Mutex
	mapLock sync.RWMutex
	logger  zerolog.Logger
}

// NewKeyMutexManager creates a new key mutex manager
func NewKeyMutexManager(logger zerolog.Logger) *KeyMutexManager {
	return &KeyMutexManager{
		mutexes: make(map[string]*sync.Mutex),
		logger:  logger.With().Str("component", "KeyMutexManager").Logger(),
	}
}

// GetMutex returns the mutex for key, creating it on first use
func (kmm *KeyMutexManager) GetMutex(key string) *sync.Mutex {
	kmm.mapLock.RLock()
	mutex, exists := kmm.mutexes[key]
	kmm.mapLock.RUnlock()

	if exists {
		return mutex
	}

	kmm.mapLock.Lock()
	defer kmm.mapLock.Unlock()

	// Double-check after acquiring write lock
	if mutex, exists := kmm.mutexes[key]; exists {
		return mutex
	}

	mutex = &sync.Mutex{}
	kmm.mutexes[key] = mutex
	return mutex
}

// Forget drops the mutex of a key that was cleared
func (kmm *KeyMutexManager) Forget(key string) {
	kmm.mapLock.Lock()
	delete(kmm.mutexes, key)
	kmm.mapLock.Unlock()
}

// Len returns the number of tracked keys
func (kmm *KeyMutexManager) Len() int {
	kmm.mapLock.RLock()
	defer kmm.mapLock.RUnlock()
	return len(kmm.mutexes)
}
