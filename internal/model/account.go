package model

import "time"

// AccountStatusActive is the statut_account value given to new accounts.
const AccountStatusActive = "active"

// Account represents a row of the `accounts` table. Nullable columns are
// pointers; handlers define their own JSON shapes.
//
// Fields:
//
//	ID             – UUID v4 primary key.
//	Username       – display name chosen at registration.
//	Mail           – unique, lowercased and trimmed e-mail address.
//	PasswordHash   – scrypt credential hash ("scrypt$salt$key").
//	Avatar         – optional avatar URL.
//	StatutAccount  – account status, "active" on creation.
//	CreatedAt      – creation timestamp (UTC).
//	LastConnection – last successful login or re-registration.
type Account struct {
	ID             string     // accounts.id
	Username       string     // accounts.username
	Mail           string     // accounts.mail
	PasswordHash   string     // accounts.password_hash
	Avatar         *string    // accounts.avatar (nullable)
	StatutAccount  *string    // accounts.statut_account (nullable)
	CreatedAt      time.Time  // accounts.created_at
	LastConnection *time.Time // accounts.last_connection (nullable)
}
