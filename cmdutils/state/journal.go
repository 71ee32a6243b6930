package state

import (
	"github.com/dolthub/swiss"
)

// Journal saves the committed state of resources before they are first modified, so that every
// modification made since the last Commit can be undone with Rollback
type Journal struct {
	saved *swiss.Map[Resource, *SubresourceStates]
}

func (j *Journal) Init() {
	j.saved = swiss.NewMap[Resource, *SubresourceStates](32)
}

// Record saves resource's committed state unless it has already been saved since the last
// Commit or Rollback
func (j *Journal) Record(resource Resource) {
	if j.saved.Has(resource) {
		return
	}

	saved := statesPool.Get().(*SubresourceStates)
	saved.CopyFrom(resource.CommittedState())
	j.saved.Put(resource, saved)
}

// Count is the number of resources recorded since the last Commit or Rollback
func (j *Journal) Count() int {
	return j.saved.Count()
}

// Rollback restores the committed state of every recorded resource
func (j *Journal) Rollback() {
	j.saved.Iter(func(resource Resource, saved *SubresourceStates) bool {
		resource.CommittedState().CopyFrom(saved)
		return false
	})
	j.Commit()
}

// Commit keeps the current committed states and forgets every saved one
func (j *Journal) Commit() {
	if j.saved.Count() == 0 {
		return
	}

	j.saved.Iter(func(_ Resource, saved *SubresourceStates) bool {
		statesPool.Put(saved)
		return false
	})
	j.saved.Clear()
}
