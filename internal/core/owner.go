package core

// Owner identifies whose workspace a request operates on. Signed in users
// keep their workspace across sessions; anonymous visitors get one per session.
type Owner struct {
	UserID    string
	SessionID string
}

// Key is the owner id stored with every workspace image
func (o Owner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "session:" + o.SessionID
}

// Valid reports whether the owner can hold a workspace
func (o Owner) Valid() bool {
	return o.UserID != "" || o.SessionID != ""
}
