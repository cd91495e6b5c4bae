package models

// User is the slice of the account record this service reads. Accounts are
// owned by the tracker API; the engine only needs the email for the
// offer-stage notification.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
