package database

// ImageStatus is the lifecycle state of a workspace image
type ImageStatus string

const (
	StatusPending    ImageStatus = "pending"
	StatusProcessing ImageStatus = "processing"
	StatusCompleted  ImageStatus = "completed"
	StatusError      ImageStatus = "error"
)

var transitions = map[ImageStatus][]ImageStatus{
	// pending -> error covers jobs that could not be scheduled
	StatusPending:    {StatusProcessing, StatusError},
	StatusProcessing: {StatusCompleted, StatusError},
	StatusCompleted:  {StatusProcessing},
	StatusError:      {StatusProcessing},
}

// CanTransition reports whether an image may move from one status to another
func CanTransition(from, to ImageStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no work is outstanding for the status
func (s ImageStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}
