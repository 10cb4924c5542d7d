// internal/identity/domain.go
package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Role classifies an account. It is fixed at provisioning time.
type Role string

const (
	RoleMember    Role = "Member"
	RoleLibrarian Role = "Librarian"
	RoleAdmin     Role = "Admin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleLibrarian || r == RoleAdmin
}

// Settings holds the member-facing account toggles.
type Settings struct {
	Notifications bool `json:"notifications" bson:"notifications"`
	DarkMode      bool `json:"darkMode" bson:"darkMode"`
}

// DefaultSettings is applied to every new profile.
var DefaultSettings = Settings{Notifications: true, DarkMode: false}

// Profile is the persisted record describing an account, keyed by the
// authentication service's internal identifier. UserID is the human-facing
// 6-digit identifier and is unique across the whole collection.
type Profile struct {
	InternalID           uuid.UUID `json:"internalId" bson:"_id"`
	UserID               string    `json:"userId" bson:"userId"`
	Name                 string    `json:"name" bson:"name"`
	Role                 Role      `json:"role" bson:"role"`
	Email                string    `json:"email" bson:"email"`
	PersonalEmail        string    `json:"personalEmail,omitempty" bson:"personalEmail,omitempty"`
	GovtDocNumber        string    `json:"govtDocNumber,omitempty" bson:"govtDocNumber,omitempty"`
	DateJoined           string    `json:"dateJoined" bson:"dateJoined"`
	MembershipPlan       string    `json:"membershipPlan" bson:"membershipPlan"`
	MembershipExpiryDate string    `json:"membershipExpiryDate,omitempty" bson:"membershipExpiryDate,omitempty"`
	Settings             Settings  `json:"settings" bson:"settings"`
}

// ProvisionRequest carries everything needed to create one account.
// LoginEmail and Password may be empty on the admin-creates-librarian path;
// they are then derived and generated respectively.
type ProvisionRequest struct {
	Name            string `json:"name"`
	LoginEmail      string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            Role   `json:"role"`
	PersonalEmail   string `json:"personalEmail"`
	GovtDocNumber   string `json:"govtDocNumber"`

	// SelfRegistered distinguishes sign-up from admin-initiated creation.
	SelfRegistered bool `json:"-"`
}

// ProvisionedAccount is the caller-facing result of a successful Provision.
type ProvisionedAccount struct {
	UserID     string `json:"userId"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	LoginEmail string `json:"email"`
	DateJoined string `json:"dateJoined"`

	// Password is set only when it was generated on the caller's behalf.
	Password string `json:"password,omitempty"`

	// VerificationSent and CredentialsEmailed report side-channel delivery;
	// a false value after success means the delivery step failed.
	VerificationSent   bool `json:"verificationSent"`
	CredentialsEmailed bool `json:"credentialsEmailed,omitempty"`
}

// AdminSeed describes one well-known Admin account the reconciler converges.
type AdminSeed struct {
	Email      string
	Password   string
	Name       string
	UserID     string
	DateJoined string // YYYY-MM-DD, empty means "today" at first creation
}

// DefaultAdminSeeds is the fixed set ensured on every start.
var DefaultAdminSeeds = []AdminSeed{
	{
		Email:    "admin@anybook.com",
		Password: "Admin@2025!",
		Name:     "AnyBook Admin",
		UserID:   "000001",
	},
}

// SeedResult reports the outcome of reconciling a single seed.
type SeedResult struct {
	Email    string `json:"email"`
	Created  bool   `json:"created"`
	Repaired bool   `json:"repaired"`
	Err      error  `json:"-"`
}

// UserSummary is the flattened row the management listing returns.
type UserSummary struct {
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	Email         string `json:"email"`
	PersonalEmail string `json:"personalEmail,omitempty"`
	GovtDocNumber string `json:"govtDocNumber,omitempty"`
	DateJoined    string `json:"dateJoined"`
}

// Stats is the dashboard counter pair.
type Stats struct {
	Users int64 `json:"users"`
	Books int64 `json:"books"`
}

var (
	// ErrAllocationExhausted is returned when the allocator cannot find a
	// free 6-digit id within its retry cap.
	ErrAllocationExhausted = errors.New("user id allocation exhausted")

	// ErrDuplicateUserID is returned by ProfileStore.Create when the chosen
	// userId is already held by another profile.
	ErrDuplicateUserID = errors.New("user id already taken")

	// ErrSessionRestoreFailed reports that the acting session could not be
	// reinstated after provisioning on another credential's behalf.
	ErrSessionRestoreFailed = errors.New("session restore failed")

	// ErrNotFound is returned when a profile does not exist.
	ErrNotFound = errors.New("profile not found")

	// ErrForbidden is returned when the acting session lacks the rights for
	// the operation: profile mutations are owner-only, librarian creation is
	// admin-only.
	ErrForbidden = errors.New("operation not permitted for this session")
)

// ValidationError reports a user-correctable input problem. It is always
// returned before any external call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthCode identifies a stable authentication-service failure class.
type AuthCode string

const (
	AuthEmailInUse    AuthCode = "emailInUse"
	AuthInvalidEmail  AuthCode = "invalidEmail"
	AuthWeakPassword  AuthCode = "weakPassword"
	AuthWrongPassword AuthCode = "wrongPassword"
	AuthUserNotFound  AuthCode = "userNotFound"
	AuthOther         AuthCode = "other"
)

// AuthError wraps an authentication-service failure with its stable code so
// handlers can translate it to a fixed user-facing message.
type AuthError struct {
	Code AuthCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Code, e.Err)
	}
	return "auth " + string(e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProfileWriteError reports a profile write that failed after the credential
// was already created. The credential is left orphaned; re-provisioning the
// same login email repairs it instead of duplicating.
type ProfileWriteError struct {
	Err error
}

func (e *ProfileWriteError) Error() string {
	return fmt.Sprintf("profile write failed: %v", e.Err)
}

func (e *ProfileWriteError) Unwrap() error { return e.Err }
