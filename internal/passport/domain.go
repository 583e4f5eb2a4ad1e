package passport

// Credential is the subset of the user record needed to authenticate.
type Credential struct {
	UserID       int64
	Email        string
	PasswordHash string
	Enabled      bool
}
