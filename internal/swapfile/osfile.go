package swapfile

import "os"

// osBacking adapts *os.File to the Backing contract. This is the
// disk-backed swap-file implementation: one real file per process.
type osBacking struct {
	*os.File
}

// CreateTemp opens a fresh per-process swap file in dir. Passing an
// empty dir uses the system temp directory.
func CreateTemp(dir, pattern string) (Backing, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return osBacking{f}, nil
}
