package session

// Status is the derived authentication status of a session
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
)

// User is the identity the session resolved to, either from token claims or from
// the session-info endpoint.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	AccountName string `json:"accountName,omitempty"`
	Role        string `json:"role,omitempty"`
}

// PlaceholderUserID is used when a token is accepted but its claims cannot be read
const PlaceholderUserID = "unknown"

// State is an immutable snapshot of the session
type State struct {
	Status                Status
	Token                 string
	User                  *User
	CookieSessionValid    bool
	CheckingCookieSession bool
}

// DeriveStatus computes the session status from its four inputs.
// A pending cookie check always reads as loading; a credential without a resolved
// user also reads as loading.
func DeriveStatus(token string, user *User, cookieSessionValid, checkingCookieSession bool) Status {
	if checkingCookieSession {
		return StatusLoading
	}
	if token != "" || cookieSessionValid {
		if user != nil {
			return StatusAuthenticated
		}
		return StatusLoading
	}
	return StatusUnauthenticated
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
