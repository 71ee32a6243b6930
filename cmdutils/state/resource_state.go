package state

import (
	"github.com/pkg/errors"
	"github.com/vkngwrapper/cmdtrack/cmdutils"
)

// AllSubresources is the subresource index used to address every subresource of a resource at once
const AllSubresources int = -1

// SubresourceStates tracks the state of every subresource of a single resource. While every
// subresource shares a state, the object is uniform and only the shared state is meaningful to
// callers; diverging a single subresource makes it non-uniform.
type SubresourceStates struct {
	uniform           bool
	state             ResourceStates
	subresourceStates []ResourceStates
}

// Init sizes the object for subresourceCount subresources and sets all of them to initialState
func (s *SubresourceStates) Init(subresourceCount int, initialState ResourceStates) {
	cmdutils.Assertf(subresourceCount > 0, "resources must have at least one subresource, but %d was provided", subresourceCount)

	if cap(s.subresourceStates) >= subresourceCount {
		s.subresourceStates = s.subresourceStates[:subresourceCount]
	} else {
		s.subresourceStates = make([]ResourceStates, subresourceCount)
	}

	s.SetResourceState(initialState)
}

// Initialized returns true if Init has been called
func (s *SubresourceStates) Initialized() bool {
	return len(s.subresourceStates) > 0
}

func (s *SubresourceStates) SubresourceCount() int {
	return len(s.subresourceStates)
}

// AreAllSubresourcesSame returns true if the object is uniform
func (s *SubresourceStates) AreAllSubresourcesSame() bool {
	return s.uniform
}

// ResourceState returns the state shared by all subresources. It is a contract violation
// to call this on a non-uniform object.
func (s *SubresourceStates) ResourceState() ResourceStates {
	cmdutils.Assertf(s.uniform, "requested the shared state of a resource whose subresources are in different states")
	return s.state
}

func (s *SubresourceStates) SubresourceState(subresource int) ResourceStates {
	if subresource == AllSubresources {
		return s.ResourceState()
	}

	cmdutils.Assertf(subresource >= 0 && subresource < len(s.subresourceStates), "subresource %d is out of range for a resource with %d subresources", subresource, len(s.subresourceStates))
	if s.uniform {
		return s.state
	}
	return s.subresourceStates[subresource]
}

// CheckResourceState returns true if the addressed subresource (or all of them) is in the given state
func (s *SubresourceStates) CheckResourceState(state ResourceStates, subresource int) bool {
	if s.uniform {
		return s.state == state
	}

	if subresource != AllSubresources {
		return s.SubresourceState(subresource) == state
	}

	for _, subresourceState := range s.subresourceStates {
		if subresourceState != state {
			return false
		}
	}
	return true
}

// SetResourceState moves every subresource into state and makes the object uniform
func (s *SubresourceStates) SetResourceState(state ResourceStates) {
	s.uniform = true
	s.state = state
	for i := range s.subresourceStates {
		s.subresourceStates[i] = state
	}
}

// SetSubresourceState moves a single subresource into state
func (s *SubresourceStates) SetSubresourceState(subresource int, state ResourceStates) {
	if subresource == AllSubresources || len(s.subresourceStates) == 1 {
		s.SetResourceState(state)
		return
	}

	cmdutils.Assertf(subresource >= 0 && subresource < len(s.subresourceStates), "subresource %d is out of range for a resource with %d subresources", subresource, len(s.subresourceStates))
	if s.uniform {
		if s.state == state {
			return
		}
		s.uniform = false
	}

	s.subresourceStates[subresource] = state
}

// CheckAllSubresourceSame collapses the object back to uniform if every subresource shares a state,
// and returns whether the object is uniform
func (s *SubresourceStates) CheckAllSubresourceSame() bool {
	if s.uniform {
		return true
	}

	first := s.subresourceStates[0]
	for _, subresourceState := range s.subresourceStates[1:] {
		if subresourceState != first {
			return false
		}
	}

	s.uniform = true
	s.state = first
	return true
}

func (s *SubresourceStates) Validate() error {
	if !s.Initialized() {
		return errors.New("subresource states were never initialized")
	}

	if !s.uniform {
		return nil
	}

	for i, subresourceState := range s.subresourceStates {
		if subresourceState != s.state {
			return errors.Errorf("subresource %d is in state %s but the resource is marked as uniformly %s", i, subresourceState, s.state)
		}
	}

	return nil
}

// CopyFrom makes s an exact copy of other
func (s *SubresourceStates) CopyFrom(other *SubresourceStates) {
	if cap(s.subresourceStates) >= len(other.subresourceStates) {
		s.subresourceStates = s.subresourceStates[:len(other.subresourceStates)]
	} else {
		s.subresourceStates = make([]ResourceStates, len(other.subresourceStates))
	}

	copy(s.subresourceStates, other.subresourceStates)
	s.uniform = other.uniform
	s.state = other.state
}
