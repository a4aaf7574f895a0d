package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 4

// ErrUsernameTaken is returned by user stores on a duplicate username.
var ErrUsernameTaken = errors.New("username already taken")

// User is a registered trader. Each user owns exactly one wallet.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose
	CreatedAt    time.Time `json:"created_at"`
}
