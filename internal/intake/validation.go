package intake

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"
)

const (
	MaxFiles       = 5
	MaxFileSize    = 50 * 1024 * 1024
	CodeLength     = 6
	ResendCooldown = 45 * time.Second
)

var AllowedExtensions = []string{"pdf", "doc", "docx", "png", "jpg", "jpeg"}

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codePattern       = regexp.MustCompile(`^[0-9]{6}$`)
	unsafeFilenameRun = regexp.MustCompile(`[^a-z0-9.\-\s_]`)
	whitespaceRun     = regexp.MustCompile(`\s+`)
)

// Field error messages shown next to the contact form inputs.
const (
	MsgNameRequired    = "Please enter your name."
	MsgEmailInvalid    = "Enter a valid email."
	MsgPhoneRequired   = "Phone number is required."
	MsgPhoneInvalid    = "Enter a phone number we can reach."
	MsgEmailBounces    = "That email address cannot receive mail."
	MsgReasonRequired  = "Choose the main reason for the review."
	MsgConsentRequired = "You must agree before continuing."
	MsgFixFields       = "Please fix the highlighted fields."
)

// IsEmail reports whether s has the basic local@domain.tld shape.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValidCode reports whether code is exactly six ASCII digits.
func IsValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Extension is the lower-cased text after the final dot, or "" when the
// name has none.
func Extension(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

func IsAllowedExtension(name string) bool {
	return slices.Contains(AllowedExtensions, Extension(name))
}

// SanitizeFilename produces the object-store name for an upload:
// lower-cased, stripped to [a-z0-9.-_] plus whitespace, whitespace runs
// collapsed to "-", "file" when nothing survives, prefixed with the
// upload time in unix milliseconds.
func SanitizeFilename(name string, now time.Time) string {
	clean := strings.ToLower(name)
	clean = unsafeFilenameRun.ReplaceAllString(clean, "")
	clean = whitespaceRun.ReplaceAllString(clean, "-")
	if clean == "" {
		clean = "file"
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), clean)
}

// ---------------------------------------------------------------------
// Contact payload
// ---------------------------------------------------------------------

type ContactPayload struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	City        string `json:"city"`
	Zip         string `json:"zip"`
	Reason      string `json:"reason"`
	ProjectType string `json:"project_type"`
	BudgetRange string `json:"budget_range"`
	Notes       string `json:"notes"`
	Consent     bool   `json:"consent"`
}

// FieldErrors maps a contact form field to the message shown beside it.
type FieldErrors map[string]string

// Normalize trims every text field and lower-cases the email.
func (p ContactPayload) Normalize() ContactPayload {
	return ContactPayload{
		Name:        strings.TrimSpace(p.Name),
		Email:       NormalizeEmail(p.Email),
		Phone:       strings.TrimSpace(p.Phone),
		City:        strings.TrimSpace(p.City),
		Zip:         strings.TrimSpace(p.Zip),
		Reason:      strings.TrimSpace(p.Reason),
		ProjectType: strings.TrimSpace(p.ProjectType),
		BudgetRange: strings.TrimSpace(p.BudgetRange),
		Notes:       strings.TrimSpace(p.Notes),
		Consent:     p.Consent,
	}
}

// Validate checks an already normalized payload; nil means it may advance.
func (p ContactPayload) Validate() FieldErrors {
	errs := FieldErrors{}
	if p.Name == "" {
		errs["name"] = MsgNameRequired
	}
	if p.Email == "" || !IsEmail(p.Email) {
		errs["email"] = MsgEmailInvalid
	}
	if p.Phone == "" {
		errs["phone"] = MsgPhoneRequired
	}
	if p.Reason == "" {
		errs["reason"] = MsgReasonRequired
	}
	if !p.Consent {
		errs["consent"] = MsgConsentRequired
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
