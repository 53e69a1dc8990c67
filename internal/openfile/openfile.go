// Package openfile provides os.OpenFile variants with a fixed creation
// policy, in the shape bbolt expects for bbolt.Options.OpenFile.
package openfile

import "os"

// Func is the signature of os.OpenFile.
type Func func(name string, flag int, perm os.FileMode) (*os.File, error)

type Options struct {
	// FailIfFileExists makes the open fail instead of reusing an
	// existing file. Used for the temporary files a store writes.
	FailIfFileExists bool

	// FailIfFileDoesntExist makes the open fail instead of creating a
	// missing file. Used when loading persisted indexes.
	FailIfFileDoesntExist bool
}

// OpenFile returns an open function honoring opts.
func OpenFile(opts Options) Func {
	return func(name string, flag int, perm os.FileMode) (*os.File, error) {
		if opts.FailIfFileExists {
			flag |= os.O_CREATE | os.O_EXCL
		}
		if opts.FailIfFileDoesntExist {
			flag &^= os.O_CREATE | os.O_EXCL
		}
		return os.OpenFile(name, flag, perm)
	}
}

// Exclusive opens files that must not exist yet.
func Exclusive() Func {
	return OpenFile(Options{FailIfFileExists: true})
}

// Existing opens files that must already exist.
func Existing() Func {
	return OpenFile(Options{FailIfFileDoesntExist: true})
}
