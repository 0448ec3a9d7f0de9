package kpm

import "github.com/mattjoyce/kpmd/internal/usermem"

// Command is the decoded form of a dispatch's argument slots. Each
// implementation names which slots are caller addresses and which are
// scalars, so handlers never reinterpret raw integers.
type Command interface {
	Code() ControlCode
	isCommand()
}

// LoadCommand: Path is required, Args is optional.
type LoadCommand struct {
	Path usermem.Addr
	Args usermem.Addr
}

type UnloadCommand struct {
	Name usermem.Addr
}

type NumCommand struct{}

type InfoCommand struct {
	Name usermem.Addr
	Out  usermem.Addr
}

// ListCommand: Capacity is the caller-declared size of Out.
type ListCommand struct {
	Out      usermem.Addr
	Capacity int32
}

type ControlCommand struct {
	Name usermem.Addr
	Args usermem.Addr
}

// VersionCommand: Capacity is the caller-declared size of Out, including the
// terminator.
type VersionCommand struct {
	Out      usermem.Addr
	Capacity uint32
}

func (LoadCommand) Code() ControlCode    { return CodeLoad }
func (UnloadCommand) Code() ControlCode  { return CodeUnload }
func (NumCommand) Code() ControlCode     { return CodeNum }
func (InfoCommand) Code() ControlCode    { return CodeInfo }
func (ListCommand) Code() ControlCode    { return CodeList }
func (ControlCommand) Code() ControlCode { return CodeControl }
func (VersionCommand) Code() ControlCode { return CodeVersion }

func (LoadCommand) isCommand()    {}
func (UnloadCommand) isCommand()  {}
func (NumCommand) isCommand()     {}
func (InfoCommand) isCommand()    {}
func (ListCommand) isCommand()    {}
func (ControlCommand) isCommand() {}
func (VersionCommand) isCommand() {}

// Decode builds the typed command for code. It reports false for codes with
// no handler, including reserved codes inside the registered range.
func Decode(code ControlCode, arg1, arg2 uint64) (Command, bool) {
	switch code {
	case CodeLoad:
		return LoadCommand{Path: usermem.Addr(arg1), Args: usermem.Addr(arg2)}, true
	case CodeUnload:
		return UnloadCommand{Name: usermem.Addr(arg1)}, true
	case CodeNum:
		return NumCommand{}, true
	case CodeInfo:
		return InfoCommand{Name: usermem.Addr(arg1), Out: usermem.Addr(arg2)}, true
	case CodeList:
		return ListCommand{Out: usermem.Addr(arg1), Capacity: int32(arg2)}, true
	case CodeControl:
		return ControlCommand{Name: usermem.Addr(arg1), Args: usermem.Addr(arg2)}, true
	case CodeVersion:
		return VersionCommand{Out: usermem.Addr(arg1), Capacity: uint32(arg2)}, true
	}
	return nil, false
}
