package driver

import "github.com/pkg/errors"

// TrackingResidencySet is a ResidencySet for APIs without explicit residency management. It records
// what was inserted while open so callers can inspect it, but never pages anything in.
type TrackingResidencySet struct {
	open    bool
	objects map[any]struct{}
}

var _ ResidencySet = &TrackingResidencySet{}

func NewTrackingResidencySet() *TrackingResidencySet {
	return &TrackingResidencySet{
		objects: make(map[any]struct{}),
	}
}

func (s *TrackingResidencySet) Open() error {
	if s.open {
		return errors.New("residency set is already open")
	}

	s.open = true
	clear(s.objects)
	return nil
}

func (s *TrackingResidencySet) Close() error {
	s.open = false
	return nil
}

func (s *TrackingResidencySet) Insert(object any) {
	if object == nil {
		return
	}

	s.objects[object] = struct{}{}
}

func (s *TrackingResidencySet) IsOpen() bool {
	return s.open
}

func (s *TrackingResidencySet) Contains(object any) bool {
	_, ok := s.objects[object]
	return ok
}

func (s *TrackingResidencySet) Len() int {
	return len(s.objects)
}
