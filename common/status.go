package common

//go:generate enumer -json -type Status -trimprefix Status -transform lower

// Status of a remote job or order
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusFailed
)

// Terminal returns true if no further polling can change the status
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
