// Package kpm is the command dispatcher for the patch-module control plane.
//
// A caller issues one of seven commands through a single entry point
// (Dispatcher.Ioctl with an Envelope, or Dispatcher.Dispatch with the
// envelope's fields). The dispatcher decodes the argument slots into a typed
// Command, stages every caller string or buffer through internal/usermem,
// calls the matching hook slot, and copies results back.
//
// Command conventions:
//
//	code  name     arg1          arg2              result
//	28    load     path          args (optional)   hook status
//	29    unload   name          -                 hook status
//	30    num      -             -                 module count
//	31    list     out buffer    capacity          list size; ENOBUFS if > capacity
//	32    info     name          out buffer        0 or error
//	33    control  name          args              hook status
//	34    version  out buffer    capacity          0 or error
//
// Every dispatch writes exactly one int32 to the result address, including
// for unknown codes (EINVAL). When no backend is attached the hook stubs leave
// results alone and commands report the default result (-1).
package kpm
