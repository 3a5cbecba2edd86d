package users

import (
	"time"

	"github.com/congo-pay/accounts/internal/credential"
)

// Record is a stored user account.
type Record struct {
	ID                  string         `json:"_id,omitempty"`
	Name                string         `json:"name"`
	Email               string         `json:"email"`
	CredentialSalt      string         `json:"credential_salt"`
	CredentialHash      string         `json:"credential_hash"`
	SignupToken         string         `json:"signup_token,omitempty"`
	SignupTimestamp     time.Time      `json:"signup_timestamp"`
	SignupTokenExpires  time.Time      `json:"signup_token_expires"`
	FailedLoginAttempts int            `json:"failed_login_attempts"`
	LastLoginAt         *time.Time     `json:"last_login_at,omitempty"`
	Extra               map[string]any `json:"extra,omitempty"`
}

// Credential decodes the stored salt and hash.
func (r Record) Credential() (credential.Credential, error) {
	return credential.DecodeCredential(r.CredentialSalt, r.CredentialHash)
}

// Verified reports whether the signup token has been consumed.
func (r Record) Verified() bool {
	return r.SignupToken == ""
}

// Field names a lookup key accepted by Store.Find.
type Field string

const (
	FieldID          Field = "_id"
	FieldName        Field = "name"
	FieldEmail       Field = "email"
	FieldSignupToken Field = "signup_token"
)

func (f Field) valid() bool {
	switch f {
	case FieldID, FieldName, FieldEmail, FieldSignupToken:
		return true
	default:
		return false
	}
}
