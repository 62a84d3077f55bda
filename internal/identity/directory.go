package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Account is a login identity. PasswordHash is a bcrypt hash.
type Account struct {
	Viewer       Viewer
	PasswordHash []byte
}

// Directory is the stub login backend: a fixed set of accounts keyed by
// lower-cased contact address.
type Directory struct {
	accounts map[string]Account
}

func NewDirectory(accounts []Account) *Directory {
	byEmail := make(map[string]Account, len(accounts))
	for _, account := range accounts {
		byEmail[strings.ToLower(account.Viewer.ContactAddress)] = account
	}
	return &Directory{accounts: byEmail}
}

// DemoViewers are the sign-in accounts offered on the login screen.
func DemoViewers() []Viewer {
	return []Viewer{
		{DisplayName: "Admin User", ContactAddress: "admin@example.com", Role: RoleAdmin},
		{DisplayName: "Dr. Sarah Smith", ContactAddress: "clinician@example.com", Role: RoleClinician},
		{DisplayName: "Rachel Green", ContactAddress: "receptionist@example.com", Role: RoleReceptionist},
		{DisplayName: "Paul Chen", ContactAddress: "pharmacy@example.com", Role: RolePharmacy},
		{DisplayName: "John Doe", ContactAddress: "patient@example.com", Role: RolePatient},
	}
}

// NewDemoDirectory hashes password once per demo account.
func NewDemoDirectory(password string, cost int) (*Directory, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	var accounts []Account
	for _, viewer := range DemoViewers() {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return nil, fmt.Errorf("hash demo password: %w", err)
		}
		accounts = append(accounts, Account{Viewer: viewer, PasswordHash: hash})
	}
	return NewDirectory(accounts), nil
}

func (d *Directory) Authenticate(_ context.Context, email, password string) (Viewer, error) {
	account, ok := d.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return Viewer{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return Viewer{}, ErrInvalidCredentials
	}
	return account.Viewer, nil
}
