package auth

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Role is the application-level role of a user.
type Role = string

const (
	// RoleGuest has no standing in any clinic or company.
	RoleGuest Role = "guest"
	// RoleWorker is a clinic worker (vet, assistant, receptionist).
	RoleWorker Role = "worker"
	// RoleClinicAdmin administers a single clinic.
	RoleClinicAdmin Role = "clinic_admin"
	// RoleCompanyOwner owns a company spanning one or more clinics.
	RoleCompanyOwner Role = "company_owner"
	// RolePlatformAdmin is reserved for operators of the platform itself.
	RolePlatformAdmin Role = "platform_admin"
)

// User is the application-level user resolved through the backend. IDs are
// assigned by the backend; ProviderAccountID ties the record to the hosted
// identity provider when the user authenticates through it.
type User struct {
	ID                int64  `json:"id,omitempty"`
	Email             string `json:"email,omitempty"`
	Username          string `json:"username,omitempty"`
	FirstName         string `json:"first_name,omitempty"`
	LastName          string `json:"last_name,omitempty"`
	Role              Role   `json:"role,omitempty"`
	CompanyID         *int64 `json:"company_id,omitempty"`
	ClinicID          *int64 `json:"clinic_id,omitempty"`
	ProviderAccountID string `json:"provider_account_id,omitempty"`
	CalendarLinked    bool   `json:"calendar_linked,omitempty"`
}

// IsCompanyOwner reports whether the user operates at company scope.
func (u *User) IsCompanyOwner() bool {
	return u != nil && RoleIsAtLeast(u.Role, RoleCompanyOwner)
}

// FullName joins the user's name parts.
func (u *User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// Clinic is a single clinic a session can be scoped to.
type Clinic struct {
	ID        int64  `json:"id,omitempty"`
	CompanyID int64  `json:"company_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// NormalizePhone rewrites the clinic phone into E.164 for the given region.
// Unparseable numbers are left untouched.
func (c *Clinic) NormalizePhone(region string) {
	if c == nil || c.Phone == "" {
		return
	}
	parsed, err := phonenumbers.Parse(c.Phone, region)
	if err != nil {
		return
	}
	c.Phone = phonenumbers.Format(parsed, phonenumbers.E164)
}

// Company is a multi-clinic owner entity.
type Company struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	OwnerID     int64  `json:"owner_id,omitempty"`
	ExternalRef string `json:"external_ref,omitempty"`
}
