package domain

import "time"

type Role string

const (
	RoleClient   Role = "client"
	RoleAdvisor  Role = "advisor"
	RoleDirector Role = "director"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAdvisor, RoleDirector:
		return true
	}
	return false
}

// User is any person with a login: clients, their advisors and the bank's directors.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	Banned       bool
	AdvisorID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) IsStaff() bool {
	return u.Role == RoleAdvisor || u.Role == RoleDirector
}
