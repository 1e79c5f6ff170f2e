package model

import (
	"time"

	"github.com/google/uuid"
)

// Plans known to the billing side of the identity provider.
const (
	PlanFree    = "free"
	PlanPremium = "premium_subscription"
)

type Account struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	Status        string     `json:"status" db:"status"`
	Plan          string     `json:"plan" db:"plan"`
	LoginAttempts int        `json:"-" db:"login_attempts"`
	LockedUntil   *time.Time `json:"-" db:"locked_until"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusLocked AccountStatus = "locked"
)

// HasPlan reports whether the account is subscribed to plan.
func (a *Account) HasPlan(plan string) bool {
	return a != nil && a.Plan == plan
}

// Locked reports whether sign-in is currently refused.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

func (a *Account) Profile() Profile {
	return Profile{ID: a.ID.String(), Name: a.Name, Email: a.Email, Plan: a.Plan}
}
