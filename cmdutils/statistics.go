package cmdutils

// Statistics holds barrier counters gathered while recording command lists
type Statistics struct {
	TransitionBarriers   int
	UAVBarriers          int
	AliasingBarriers     int
	CancelledTransitions int
	NativeBarrierCalls   int
	LargestBatch         int
}

func (s *Statistics) Clear() {
	s.TransitionBarriers = 0
	s.UAVBarriers = 0
	s.AliasingBarriers = 0
	s.CancelledTransitions = 0
	s.NativeBarrierCalls = 0
	s.LargestBatch = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.TransitionBarriers += other.TransitionBarriers
	s.UAVBarriers += other.UAVBarriers
	s.AliasingBarriers += other.AliasingBarriers
	s.CancelledTransitions += other.CancelledTransitions
	s.NativeBarrierCalls += other.NativeBarrierCalls

	if other.LargestBatch > s.LargestBatch {
		s.LargestBatch = other.LargestBatch
	}
}

// AddBatch records a single native barrier call covering batchSize barriers
func (s *Statistics) AddBatch(batchSize int) {
	s.NativeBarrierCalls++

	if batchSize > s.LargestBatch {
		s.LargestBatch = batchSize
	}
}

// DetailedStatistics extends Statistics with counters gathered while executing command lists
type DetailedStatistics struct {
	Statistics
	Submissions             int
	CommandListsExecuted    int
	CommandListsDiscarded   int
	PendingBarriersResolved int
	BarrierListsSubmitted   int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.Submissions = 0
	s.CommandListsExecuted = 0
	s.CommandListsDiscarded = 0
	s.PendingBarriersResolved = 0
	s.BarrierListsSubmitted = 0
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.Submissions += other.Submissions
	s.CommandListsExecuted += other.CommandListsExecuted
	s.CommandListsDiscarded += other.CommandListsDiscarded
	s.PendingBarriersResolved += other.PendingBarriersResolved
	s.BarrierListsSubmitted += other.BarrierListsSubmitted
}
