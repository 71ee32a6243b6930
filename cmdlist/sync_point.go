package cmdlist

// SyncPoint identifies one generation of one command list: the point in the queue where the work
// recorded into that generation completes. The zero SyncPoint is invalid.
type SyncPoint struct {
	handle     Handle
	generation uint64
}

// NewSyncPoint captures the generation handle is currently recording. The SyncPoint carries its own
// reference to the list, which is dropped by Release.
func NewSyncPoint(handle Handle) SyncPoint {
	return SyncPoint{
		handle:     handle.Retain(),
		generation: handle.CurrentGeneration(),
	}
}

func (s SyncPoint) IsValid() bool {
	return !s.handle.IsNull()
}

// IsOpen returns true while the captured generation is still recording and has not been submitted
func (s SyncPoint) IsOpen() bool {
	return s.generation == s.handle.CurrentGeneration()
}

func (s SyncPoint) IsComplete() bool {
	return s.handle.IsComplete(s.generation)
}

func (s SyncPoint) WaitForCompletion() {
	s.handle.WaitForCompletion(s.generation)
}

func (s SyncPoint) Generation() uint64 {
	return s.generation
}

func (s SyncPoint) Handle() Handle {
	return s.handle
}

// Release drops the SyncPoint's reference to its command list and invalidates it
func (s *SyncPoint) Release() {
	if s.handle.IsNull() {
		return
	}

	s.handle.Release()
	s.generation = 0
}
