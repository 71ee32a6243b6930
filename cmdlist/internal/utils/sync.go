package utils

import (
	"sync"
)

// OptionalMutex is a mutex that can be switched off for managers created as externally
// synchronized, in which case Lock and Unlock do nothing
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

// Locked runs fn while holding the mutex
func (m *OptionalMutex) Locked(fn func()) {
	m.Lock()
	defer m.Unlock()

	fn()
}
