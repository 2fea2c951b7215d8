//go:build !unix

package spool

// unlink is a no-op where open files cannot be removed; Release deletes the
// file instead.
func (s *Spool) unlink() error {
	return nil
}
