package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents an account in the system.
// It contains identity, account state, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID primitive.ObjectID `json:"id" bson:"_id,omitempty"`

	// Name is the user's display or full name.
	Name string `json:"name" bson:"name"`

	// Email is the user's unique email address, used as the login key
	// and as the subject of issued access tokens.
	Email string `json:"email" bson:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" bson:"password"`

	// IsActive gates login. Inactive accounts cannot obtain tokens.
	IsActive bool `json:"is_active" bson:"is_active"`

	// IsVerified indicates whether the email address has been verified.
	// Informational only; it does not gate any operation.
	IsVerified bool `json:"is_verified" bson:"is_verified"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
