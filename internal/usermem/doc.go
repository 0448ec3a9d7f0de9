// Package usermem is the boundary between an unprivileged caller's memory and
// the privileged dispatcher.
//
// A caller owns a Space (its mappings) and is represented on each call by a
// Task that carries its address limit. The privileged side never holds a
// reference into caller memory; it stages data through the checked copy
// functions:
//
//   - AccessOK: range check against the task's limit (no mapping lookup)
//   - CopyInString / CopyInBytes: caller → privileged, read permission
//   - CopyOutBytes / CopyOutPadded / CopyOutResult: privileged → caller,
//     write permission
//
// Errors are unix.Errno values: EINVAL for missing arguments, EFAULT for any
// range the task may not touch in the requested direction.
//
// Each copy holds the space lock across its permission check and the transfer,
// so mapping changes cannot slip in between the two.
package usermem
