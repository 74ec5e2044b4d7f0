package models

// InspectResult classifies a freshly loaded file. A result that is neither
// locked nor has pages means the file could not be read at all.
type InspectResult struct {
	PageCount int
	Locked    bool
	Preview   []byte
}

// Unreadable reports whether the file failed to open for reasons other than
// a missing passphrase.
func (r InspectResult) Unreadable() bool {
	return !r.Locked && r.PageCount == 0
}

// UnlockResult is the outcome of a passphrase attempt. A wrong passphrase is
// Success == false, never an error.
type UnlockResult struct {
	Success   bool
	PageCount int
	Preview   []byte
}
