package model

// User is the subset of an account the reminder pipeline needs. The ID is the
// subject of the caller's access token and doubles as the tenant id of every
// record they own.
type User struct {
	ID    string `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
	Name  string `json:"name" db:"name"`
}
