package usermem

// DefaultAddressLimit is the first address an unprivileged task may not
// touch: the top of a 47-bit user half.
const DefaultAddressLimit Addr = 1 << 47

// Task is the invoking caller context. Every checked copy is validated
// against the Task passed to it, never against a cached context.
type Task struct {
	// Name identifies the caller in logs ("api:<request-id>", "cli", ...).
	Name string

	// Space is the caller's memory.
	Space *Space

	// Limit is the caller's address ceiling; addresses at or above it belong
	// to the privileged side. Zero means DefaultAddressLimit.
	Limit Addr
}

// NewTask returns a task over space with the default address limit.
func NewTask(name string, space *Space) *Task {
	return &Task{Name: name, Space: space}
}

func (t *Task) addressLimit() Addr {
	if t.Limit == 0 {
		return DefaultAddressLimit
	}
	return t.Limit
}
