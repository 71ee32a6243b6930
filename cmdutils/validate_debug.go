//go:build debug_cmd_utils

package cmdutils

const (
	// DebugValidation is true when structural validation of command list bookkeeping is compiled in
	DebugValidation bool = true
)

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_cmd_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}
