package models

import "time"

// CredentialRecord holds one user's API credentials for one payment provider.
// The private key is stored only as vault ciphertext plus its SHA-256 digest.
type CredentialRecord struct {
	ID                  string
	UserID              string
	Provider            string
	APIKey              string
	EncryptedPrivateKey []byte
	PrivateKeyHash      string
	Environment         string
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (c *CredentialRecord) IsLive() bool    { return c.Environment == EnvironmentLive }
func (c *CredentialRecord) IsSandbox() bool { return c.Environment == EnvironmentSandbox }

// HasSecret reports whether a private key has ever been set.
func (c *CredentialRecord) HasSecret() bool { return len(c.EncryptedPrivateKey) > 0 }
