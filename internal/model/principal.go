package model

// Principal is the authenticated caller, taken from the access token.
type Principal struct {
	UserID string
	Name   string
	Role   string
}

func (p Principal) Actor() string {
	if p.Name != "" {
		return p.Name
	}
	return p.UserID
}
