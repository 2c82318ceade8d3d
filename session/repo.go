package session

// Stored is the durable form of a session. Implementations persist it under the
// fixed keys access_token, refresh_token and user_data.
type Stored struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	Identity     Identity `json:"user_data"`
}

// Repo persists the single active session across process restarts.
type Repo interface {
	// Load returns the stored session or ErrNotFound when there is none.
	Load() (*Stored, error)

	// Save replaces the stored session in one step.
	Save(s *Stored) error

	// Clear removes the stored session. Clearing an empty repo is not an error.
	Clear() error
}
