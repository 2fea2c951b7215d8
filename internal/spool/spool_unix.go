//go:build unix

package spool

import "os"

// unlink removes the directory entry right away; the open descriptor keeps
// the content alive until Release.
func (s *Spool) unlink() error {
	if err := os.Remove(s.name); err != nil {
		return err
	}
	s.name = ""
	return nil
}
