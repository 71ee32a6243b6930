package cmdutils

import "github.com/pkg/errors"

// ErrFenceTimeout is the error a blocking wait panics with when a fence is not signaled before
// the configured timeout elapses. This indicates device loss or a fence bookkeeping bug.
var ErrFenceTimeout error = errors.New("fence was not signaled before the wait timed out")

// ErrManagerDestroyed is returned when a command list or allocator is requested from a manager
// that has already been destroyed
var ErrManagerDestroyed error = errors.New("the command list manager has been destroyed")
