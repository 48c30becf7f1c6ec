package auth

import "vedarc.org/internal/domain"

const (
	PermStudentSelf          = "student.self"
	PermAccountsRead         = "accounts.read"
	PermAccountsLifecycle    = "accounts.lifecycle"
	PermAccountsDelete       = "accounts.delete"
	PermAccountsMaintenance  = "accounts.maintenance"
	PermSubmissionsReview    = "submissions.review"
	PermGatesUnlock          = "gates.unlock"
	PermGatesApprove         = "gates.approve"
	PermCertificatesIssue    = "certificates.issue"
	PermProjectsManage       = "projects.manage"
	PermInternshipsManage    = "internships.manage"
	PermAnnouncementsPublish = "announcements.publish"
	PermPaymentsRead         = "payments.read"
)

// RolePermissions maps each role to its capabilities. Role checks in handlers go
// through these keys, so several operators can share a role.
var RolePermissions = map[domain.Role][]string{
	domain.RoleStudent: {PermStudentSelf},
	domain.RoleHR: {
		PermAccountsRead, PermAccountsLifecycle, PermAccountsDelete, PermAccountsMaintenance,
		PermPaymentsRead,
	},
	domain.RoleManager: {
		PermAccountsRead, PermSubmissionsReview, PermGatesUnlock, PermProjectsManage,
		PermInternshipsManage, PermAnnouncementsPublish,
	},
	domain.RoleAdmin: {
		PermAccountsRead, PermAccountsDelete, PermGatesApprove, PermCertificatesIssue,
		PermInternshipsManage, PermAnnouncementsPublish, PermSubmissionsReview, PermPaymentsRead,
	},
}
