package domain

import (
	"strings"
	"time"
)

// AccountStatus is the lifecycle state of a student account.
type AccountStatus string

const (
	StatusPending  AccountStatus = "Pending"
	StatusActive   AccountStatus = "Active"
	StatusDisabled AccountStatus = "Disabled"
)

// ProjectCompletion tracks the final project outcome on an account.
type ProjectCompletion string

const (
	ProjectNotStarted ProjectCompletion = "Not Started"
	ProjectInProgress ProjectCompletion = "In Progress"
	ProjectCompleted  ProjectCompletion = "Completed"
	ProjectExcellent  ProjectCompletion = "Excellent"
)

// QualifiesForLOR reports whether the project outcome satisfies the LOR gate.
func (p ProjectCompletion) QualifiesForLOR() bool {
	return p == ProjectCompleted || p == ProjectExcellent
}

// CertificateType selects one of the two gated credentials.
type CertificateType string

const (
	CertificateCompletion CertificateType = "completion"
	CertificateLOR        CertificateType = "lor"
)

// ParseCertificateType validates raw input.
func ParseCertificateType(raw string) (CertificateType, error) {
	switch CertificateType(strings.ToLower(strings.TrimSpace(raw))) {
	case CertificateCompletion:
		return CertificateCompletion, nil
	case CertificateLOR:
		return CertificateLOR, nil
	case "":
		return "", Validationf("certificate_type is required")
	default:
		return "", Validationf("Invalid certificate type %q: expected 'completion' or 'lor'", raw)
	}
}

// DisplayName is the human readable credential name used in notifications.
func (c CertificateType) DisplayName() string {
	if c == CertificateLOR {
		return "Letter of Recommendation"
	}
	return "Certificate of Completion"
}

// Registration carries the fields collected before payment.
type Registration struct {
	FullName    string `json:"fullName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	WhatsApp    string `json:"whatsapp" validate:"required"`
	CollegeName string `json:"collegeName" validate:"required"`
	Track       string `json:"track" validate:"required"`
	YearOfStudy string `json:"yearOfStudy" validate:"required"`
	PassoutYear string `json:"passoutYear" validate:"required"`
}

// Normalize trims every field and lower-cases the email.
func (r Registration) Normalize() Registration {
	return Registration{
		FullName:    strings.TrimSpace(r.FullName),
		Email:       strings.ToLower(strings.TrimSpace(r.Email)),
		WhatsApp:    strings.TrimSpace(r.WhatsApp),
		CollegeName: strings.TrimSpace(r.CollegeName),
		Track:       strings.TrimSpace(r.Track),
		YearOfStudy: strings.TrimSpace(r.YearOfStudy),
		PassoutYear: strings.TrimSpace(r.PassoutYear),
	}
}

// Account is a student's persisted identity, credentials and gate state.
type Account struct {
	UserID       string        `json:"user_id"`
	Email        string        `json:"email"`
	FullName     string        `json:"fullName"`
	WhatsApp     string        `json:"whatsapp"`
	CollegeName  string        `json:"collegeName"`
	Track        string        `json:"track"`
	YearOfStudy  string        `json:"yearOfStudy"`
	PassoutYear  string        `json:"passoutYear"`
	Status       AccountStatus `json:"status"`
	PaymentID    string        `json:"payment_id,omitempty"`
	OrderID      string        `json:"order_id,omitempty"`
	PasswordHash string        `json:"-"`

	CertificateUnlocked   bool       `json:"certificate_unlocked"`
	CertificateUnlockedBy string     `json:"certificate_unlocked_by,omitempty"`
	CertificateUnlockedAt *time.Time `json:"certificate_unlocked_at,omitempty"`
	LORUnlocked           bool       `json:"lor_unlocked"`
	LORUnlockedBy         string     `json:"lor_unlocked_by,omitempty"`
	LORUnlockedAt         *time.Time `json:"lor_unlocked_at,omitempty"`

	AdminCertificateApproval   bool       `json:"admin_certificate_approval"`
	AdminCertificateApprovalBy string     `json:"admin_certificate_approval_by,omitempty"`
	AdminCertificateApprovalAt *time.Time `json:"admin_certificate_approval_at,omitempty"`
	AdminLORApproval           bool       `json:"admin_lor_approval"`
	AdminLORApprovalBy         string     `json:"admin_lor_approval_by,omitempty"`
	AdminLORApprovalAt         *time.Time `json:"admin_lor_approval_at,omitempty"`

	CompletionPercentage float64           `json:"course_completion_percentage"`
	ProjectStatus        ProjectCompletion `json:"project_completion_status"`

	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	ActivatedBy   string     `json:"activated_by,omitempty"`
	DisabledAt    *time.Time `json:"disabled_at,omitempty"`
	DisabledBy    string     `json:"disabled_by,omitempty"`
	DisableReason string     `json:"disable_reason,omitempty"`
	EnabledAt     *time.Time `json:"enabled_at,omitempty"`
	EnabledBy     string     `json:"enabled_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	Status AccountStatus
	Track  string
	// CreatedFrom and CreatedBefore bound created_at when non-zero.
	CreatedFrom   time.Time
	CreatedBefore time.Time
}

// Matches reports whether a satisfies every set field of the filter.
func (f AccountFilter) Matches(a Account) bool {
	switch {
	case f.Status != "" && a.Status != f.Status:
		return false
	case f.Track != "" && a.Track != f.Track:
		return false
	case !f.CreatedFrom.IsZero() && a.CreatedAt.Before(f.CreatedFrom):
		return false
	case !f.CreatedBefore.IsZero() && !a.CreatedAt.Before(f.CreatedBefore):
		return false
	}
	return true
}

// Transition describes one conditional status change.
type Transition struct {
	UserID       string
	From         AccountStatus
	To           AccountStatus
	Actor        string
	At           time.Time
	Reason       string
	PasswordHash string
}

// PaymentStatus is the lifecycle of a pending registration order.
type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "created"
	PaymentCompleted PaymentStatus = "completed"
	PaymentExpired   PaymentStatus = "expired"
)

// Payment is the order record holding registration data until confirmation.
type Payment struct {
	OrderID      string        `json:"order_id"`
	Email        string        `json:"email"`
	Amount       int64         `json:"amount"`
	Currency     string        `json:"currency"`
	Status       PaymentStatus `json:"status"`
	Registration Registration  `json:"registration"`
	PaymentID    string        `json:"payment_id,omitempty"`
	Verified     bool          `json:"verified"`
	UserID       string        `json:"user_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	VerifiedAt   *time.Time    `json:"verified_at,omitempty"`
}

// Role identifies the kind of principal behind a token or session.
type Role string

const (
	RoleStudent Role = "student"
	RoleHR      Role = "hr"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleStudent, RoleHR, RoleManager, RoleAdmin:
		return r, nil
	default:
		return "", Validationf("unknown role %q", raw)
	}
}

// Operator is a staff identity (HR, manager or admin).
type Operator struct {
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	Role         Role      `json:"user_type"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is a tracked login, parallel to the stateless token.
type Session struct {
	SessionID     string     `json:"session_id"`
	UserID        string     `json:"user_id"`
	UserType      Role       `json:"user_type"`
	Token         string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	LastActivity  time.Time  `json:"last_activity"`
	IsActive      bool       `json:"is_active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// SubmissionStatus is the review state of a weekly submission.
type SubmissionStatus string

const (
	SubmissionPending       SubmissionStatus = "Pending"
	SubmissionApproved      SubmissionStatus = "approved"
	SubmissionRejected      SubmissionStatus = "rejected"
	SubmissionNeedsRevision SubmissionStatus = "needs_revision"
)

// Submission is one weekly assignment.
type Submission struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	FullName     string           `json:"fullName"`
	Track        string           `json:"track"`
	Week         int              `json:"week"`
	GithubLink   string           `json:"githubLink"`
	DeployedLink string           `json:"deployedLink"`
	Description  string           `json:"description"`
	Status       SubmissionStatus `json:"status"`
	Feedback     string           `json:"feedback,omitempty"`
	Score        *int             `json:"score,omitempty"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	ReviewedAt   *time.Time       `json:"reviewed_at,omitempty"`
	ReviewedBy   string           `json:"reviewed_by,omitempty"`
}

// SubmissionFilter narrows manager listings.
type SubmissionFilter struct {
	Track  string
	Week   int
	Status SubmissionStatus
}

// Review is a reviewer decision on a submission.
type Review struct {
	SubmissionID string
	Status       SubmissionStatus
	Feedback     string
	Score        *int
	Reviewer     string
	At           time.Time
}

// ProjectStatus is the state of a project assignment.
type ProjectStatus string

const (
	ProjectOptedIn   ProjectStatus = "Opted-In"
	ProjectAssigned  ProjectStatus = "Assigned"
	ProjectSubmitted ProjectStatus = "Submitted"
	ProjectApproved  ProjectStatus = "Approved"
	ProjectRejected  ProjectStatus = "Rejected"
)

// ProjectTemplate is a reusable project definition.
type ProjectTemplate struct {
	ID           string     `json:"id"`
	InternshipID string     `json:"internship_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	UploadLink   string     `json:"upload_link"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Project is a per-student assignment created from a template.
type Project struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	InternshipID   string        `json:"internship_id"`
	TemplateID     string        `json:"template_id,omitempty"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	UploadLink     string        `json:"upload_link"`
	Status         ProjectStatus `json:"status"`
	AutoAssigned   bool          `json:"auto_assigned"`
	AssignedAt     *time.Time    `json:"assigned_at,omitempty"`
	SubmittedAt    *time.Time    `json:"submitted_at,omitempty"`
	ReviewedAt     *time.Time    `json:"reviewed_at,omitempty"`
	ReviewedBy     string        `json:"reviewed_by,omitempty"`
	ReviewStatus   ProjectStatus `json:"review_status,omitempty"`
	ReviewFeedback string        `json:"review_feedback,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Internship is reference data for a track.
type Internship struct {
	ID          string    `json:"id"`
	TrackName   string    `json:"track_name"`
	Description string    `json:"description"`
	Duration    string    `json:"duration"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// DayContent is one day inside a week.
type DayContent struct {
	Day     int    `json:"day"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Week is a unit of course content for a track.
type Week struct {
	Track       string       `json:"track"`
	WeekNumber  int          `json:"week_number"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Days        []DayContent `json:"daily_content"`
}

// HasDay reports whether the week defines the given day.
func (w Week) HasDay(day int) bool {
	for _, d := range w.Days {
		if d.Day == day {
			return true
		}
	}
	return false
}

// DailyCompletion marks one completed day.
type DailyCompletion struct {
	UserID      string    `json:"user_id"`
	WeekNumber  int       `json:"week_number"`
	Day         int       `json:"day"`
	CompletedAt time.Time `json:"completed_at"`
}

// Notification is a message addressed to one student.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Priority  string    `json:"priority"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Announcement is visible to every student.
type Announcement struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Certificate records an issued credential document.
type Certificate struct {
	ID       string          `json:"id"`
	Code     string          `json:"certificate_code"`
	UserID   string          `json:"user_id"`
	FullName string          `json:"fullName"`
	Track    string          `json:"track"`
	Type     CertificateType `json:"certificate_type"`
	URL      string          `json:"certificate_link"`
	IssuedAt time.Time       `json:"issued_at"`
	IssuedBy string          `json:"issued_by"`
}

// Action names the transition in error messages.
func (t Transition) Action() string {
	switch {
	case t.From == StatusPending && t.To == StatusActive:
		return "activated"
	case t.From == StatusDisabled && t.To == StatusActive:
		return "enabled"
	case t.To == StatusDisabled:
		return "disabled"
	default:
		return "changed"
	}
}

// Rejected builds the error returned when the account is not in t.From.
func (t Transition) Rejected(current AccountStatus) *StateError {
	return &StateError{
		Entity:   "User",
		ID:       t.UserID,
		Action:   t.Action(),
		Current:  string(current),
		Required: string(t.From),
	}
}

// Apply sets the status and the audit fields that belong to the transition.
func (a *Account) Apply(t Transition) {
	at := t.At
	a.Status = t.To
	a.UpdatedAt = at
	switch {
	case t.To == StatusActive && t.From == StatusPending:
		a.ActivatedAt, a.ActivatedBy = &at, t.Actor
	case t.To == StatusActive:
		a.EnabledAt, a.EnabledBy = &at, t.Actor
		a.ActivatedAt, a.ActivatedBy = &at, t.Actor
	case t.To == StatusDisabled:
		a.DisabledAt, a.DisabledBy, a.DisableReason = &at, t.Actor, t.Reason
	}
	if t.PasswordHash != "" {
		a.PasswordHash = t.PasswordHash
	}
}
