// Package identity resolves who is looking at the queue: the viewer's role,
// display name and contact address, carried in a signed bearer token.
package identity

import "strings"

type Role string

const (
	RolePatient      Role = "patient"
	RoleReceptionist Role = "receptionist"
	RoleClinician    Role = "clinician"
	RolePharmacy     Role = "pharmacy"
	RoleAdmin        Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleReceptionist, RoleClinician, RolePharmacy, RoleAdmin:
		return true
	default:
		return false
	}
}

type Viewer struct {
	DisplayName    string `json:"display_name,omitempty"`
	ContactAddress string `json:"contact_address"`
	Role           Role   `json:"role"`
}

// LocalPart is the contact address up to the "@".
func (v Viewer) LocalPart() string {
	local, _, _ := strings.Cut(v.ContactAddress, "@")
	return local
}

// AssigneeName is the label recorded on an entry the viewer assigns to
// themselves.
func (v Viewer) AssigneeName() string {
	if name := strings.TrimSpace(v.DisplayName); name != "" {
		return name
	}
	return "Dr. " + v.LocalPart()
}
