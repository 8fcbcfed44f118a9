package models

// Profile is a read-only row from the user_profiles collection. The chat
// core never writes profiles; they belong to the account subsystem.
type Profile struct {
	UserID      string `json:"user_id" db:"user_id"`
	DisplayName string `json:"display_name,omitempty" db:"display_name"`
	Handle      string `json:"handle" db:"handle"`
	AvatarURL   string `json:"avatar_url,omitempty" db:"avatar_url"`
}
