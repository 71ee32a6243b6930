package barrier

import "github.com/vkngwrapper/cmdtrack/cmdutils/state"

// Type identifies the kind of resource barrier being recorded
type Type uint32

const (
	// TypeTransition moves a resource or subresource from one state to another
	TypeTransition Type = iota
	// TypeAliasing marks a switch between two resources placed in overlapping memory
	TypeAliasing
	// TypeUAV orders unordered-access reads and writes of a resource against one another
	TypeUAV
)

var typeMapping = map[Type]string{
	TypeTransition: "TypeTransition",
	TypeAliasing:   "TypeAliasing",
	TypeUAV:        "TypeUAV",
}

func (t Type) String() string {
	return typeMapping[t]
}

// Barrier is a single resource barrier waiting to be issued to a native command list
type Barrier struct {
	Type Type

	// Resource is the subject of a transition or UAV barrier, and the resource becoming active for
	// an aliasing barrier. A nil Resource in a UAV barrier orders all unordered-access work.
	Resource state.Resource
	// AliasBefore is the resource becoming inactive for an aliasing barrier. It may be nil.
	AliasBefore state.Resource

	// Subresource is the subresource a transition applies to, or state.AllSubresources
	Subresource int
	StateBefore state.ResourceStates
	StateAfter  state.ResourceStates
}

// Recorder is implemented by native command lists. ResourceBarrier must issue every barrier
// in a single native call and must not retain the slice after returning.
type Recorder interface {
	ResourceBarrier(barriers []Barrier)
}
