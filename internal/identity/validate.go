// internal/identity/validate.go
package identity

import (
	"regexp"
	"strings"
)

const emailDomain = "@anybook.com"

var govtDocPattern = regexp.MustCompile(`^[0-9]{12}$`)

// validateProvision checks a request in a fixed order, first failure wins:
// required-for-role fields non-empty, name length, email shape, the
// librarian document number, then the self-registration password pair.
// It never touches a collaborator.
func validateProvision(req ProvisionRequest) error {
	if !req.Role.Valid() {
		return &ValidationError{Field: "role", Reason: "must be Member, Librarian or Admin"}
	}
	if strings.TrimSpace(req.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if req.Role == RoleLibrarian {
		if strings.TrimSpace(req.PersonalEmail) == "" {
			return &ValidationError{Field: "personalEmail", Reason: "required for librarians"}
		}
		if strings.TrimSpace(req.GovtDocNumber) == "" {
			return &ValidationError{Field: "govtDocNumber", Reason: "required for librarians"}
		}
	}
	if req.SelfRegistered {
		if req.LoginEmail == "" {
			return &ValidationError{Field: "email", Reason: "required"}
		}
		if req.Password == "" {
			return &ValidationError{Field: "password", Reason: "required"}
		}
		if len(strings.TrimSpace(req.Name)) < 3 {
			return &ValidationError{Field: "name", Reason: "must be at least 3 characters"}
		}
	}
	if req.LoginEmail != "" && !emailShapeOK(req.LoginEmail) {
		return &ValidationError{Field: "email", Reason: "must contain '@' and '.'"}
	}
	if req.Role == RoleLibrarian {
		if !emailShapeOK(req.PersonalEmail) {
			return &ValidationError{Field: "personalEmail", Reason: "must contain '@' and '.'"}
		}
		if !govtDocPattern.MatchString(req.GovtDocNumber) {
			return &ValidationError{Field: "govtDocNumber", Reason: "must be exactly 12 digits"}
		}
	}
	if req.SelfRegistered {
		if len(req.Password) < 6 {
			return &ValidationError{Field: "password", Reason: "must be at least 6 characters"}
		}
		if req.Password != req.ConfirmPassword {
			return &ValidationError{Field: "confirmPassword", Reason: "passwords do not match"}
		}
	}
	return nil
}

// emailShapeOK applies the same minimal shape check the sign-up form does.
func emailShapeOK(email string) bool {
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}

// deriveLoginEmail builds the institutional address for librarian accounts
// created by an admin: lowercased name with spaces removed, at the fixed
// domain.
func deriveLoginEmail(name string) string {
	clean := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "")
	return clean + emailDomain
}
