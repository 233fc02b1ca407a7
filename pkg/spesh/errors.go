package spesh

import "fmt"

// DeoptInvariantError is panicked when a caller violates one of this
// package's invariants (deopt requested on an unspecialized frame, an
// inline descriptor referencing a non-code object, a PEA materialization
// request). These indicate a logic bug in the caller, not a recoverable
// runtime condition, so this package never recovers from them itself -- the
// interpreter's top-level recover is expected to see them, exactly as the
// original halts the whole VM with a diagnostic.
type DeoptInvariantError struct {
	Condition string
	SFName    string
	CUID      string
}

func (e *DeoptInvariantError) Error() string {
	return fmt.Sprintf("%s for %s (%s)", e.Condition, e.SFName, e.CUID)
}

// fatalf panics with a DeoptInvariantError naming sf, mirroring MVM_oops's
// diagnostic of static-frame name plus compilation-unit id.
func fatalf(sf *StaticFrame, condition string) {
	name, cuid := "?", "?"
	if sf != nil {
		name, cuid = sf.Name, sf.CUID
	}
	panic(&DeoptInvariantError{Condition: condition, SFName: name, CUID: cuid})
}
