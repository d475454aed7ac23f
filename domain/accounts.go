package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is a local actor. The keypair is generated once at creation and never rotated.
type Account struct {
	Id            uuid.UUID
	Username      string
	DisplayName   string
	Summary       string
	PublicKeyPem  string
	PrivateKeyPem string
	CreatedAt     time.Time
}

// Name returns the display name, falling back to the username.
func (acc *Account) Name() string {
	if acc.DisplayName != "" {
		return acc.DisplayName
	}
	return acc.Username
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tDisplayName: %s \n\tCREATED_AT: %s", acc.Id, acc.Username, acc.DisplayName, acc.CreatedAt)
}
