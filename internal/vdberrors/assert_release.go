//go:build !vdbdebug

package vdberrors

// Assert returns an Internal error instead of panicking when cond is
// false. Callers should treat the returned error as "put the collection
// in read-only mode" per spec.md §7.
func Assert(cond bool, msg string) error {
	if !cond {
		return New(Internal, "invariant violated: "+msg, nil)
	}
	return nil
}
