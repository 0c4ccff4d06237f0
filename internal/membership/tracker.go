package membership

import "context"

// Member is one user joined to the room. ConnectionID is the session that
// added the entry and is the only one allowed to remove it.
type Member struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	ConnectionID string `json:"connectionId"`
}

// Tracker holds the set of joined users, at most one entry per user ID.
type Tracker interface {
	// Add inserts m unless its user is already present. It returns whether
	// the entry was added and the member count afterwards.
	Add(ctx context.Context, m Member) (added bool, count int, err error)
	// Remove deletes the user's entry if connectionID owns it. It returns
	// whether the entry was removed and the member count afterwards.
	Remove(ctx context.Context, userID, connectionID string) (removed bool, count int, err error)
	Count(ctx context.Context) (int, error)
	Members(ctx context.Context) ([]Member, error)
}
