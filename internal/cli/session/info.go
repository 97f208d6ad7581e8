package session

import "strings"

// SessionInfo is the GET /api/me response
type SessionInfo struct {
	Profile Profile  `json:"profile"`
	Account Account  `json:"account"`
	Person  *Person  `json:"person,omitempty"`
	Roles   []string `json:"roles"`
}

// Profile is the user profile section of SessionInfo
type Profile struct {
	ID         string  `json:"id"`
	AccountID  string  `json:"accountId,omitempty"`
	FirstName  string  `json:"firstName,omitempty"`
	LastName   string  `json:"lastName,omitempty"`
	Name       string  `json:"name,omitempty"`
	Email      string  `json:"email,omitempty"`
	Status     string  `json:"status,omitempty"`
	IsActive   bool    `json:"isActive"`
	PersonID   string  `json:"personId,omitempty"`
	LastAccess *string `json:"lastAccess"`
	CreatedAt  string  `json:"createdAt,omitempty"`
}

// Account is the account section of SessionInfo
type Account struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Status   string `json:"status,omitempty"`
	PersonID string `json:"personId,omitempty"`
	IsActive bool   `json:"isActive"`
}

// Person is the person section of SessionInfo
type Person struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	DocumentNumber string  `json:"documentNumber,omitempty"`
	Email          string  `json:"email,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	Address        *string `json:"address,omitempty"`
}

// UserFromSessionInfo builds the session user from a session-info response
func UserFromSessionInfo(info *SessionInfo) *User {
	if info == nil {
		return nil
	}

	user := &User{
		ID:          info.Profile.ID,
		Email:       info.Profile.Email,
		DisplayName: strings.TrimSpace(info.Profile.Name),
		AccountName: strings.TrimSpace(info.Account.Name),
		Role:        info.Account.Role,
	}
	if user.ID == "" {
		user.ID = PlaceholderUserID
	}
	if user.Role == "" && len(info.Roles) > 0 {
		user.Role = info.Roles[0]
	}
	return user
}
