package core

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID          string
	Name        string
	Email       string
	IsAdmin     bool
	IsCounselor bool
}

// IsStaff reports whether the Actor may read other users' planning data.
func (a Actor) IsStaff() bool {
	return a.IsAdmin || a.IsCounselor
}

// CanRead reports whether the Actor may read a resource owned by ownerID.
func (a Actor) CanRead(ownerID string) bool {
	return a.ID == ownerID || a.IsStaff()
}

// CanWrite reports whether the Actor may modify a resource owned by ownerID.
func (a Actor) CanWrite(ownerID string) bool {
	return a.ID == ownerID || a.IsAdmin
}
