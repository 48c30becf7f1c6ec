package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/submission"
)

func (a *API) studentRoutes(r chi.Router) {
	r.Use(RequirePermission(auth.PermStudentSelf))

	r.Get("/internship-details", a.studentInternship)
	r.Get("/weeks", a.studentWeeks)
	r.Get("/announcements", a.studentAnnouncements)
	r.Post("/submit-assignment", a.submitAssignment)
	r.Get("/submissions", a.studentSubmissions)
	r.Get("/notifications", a.studentNotifications)
	r.Post("/notifications/read-all", a.markAllNotificationsRead)
	r.Post("/notifications/{id}/read", a.markNotificationRead)
	r.Get("/notifications/stream", a.notificationStream)
	r.Get("/certificates", a.studentCertificates)
	r.Post("/daily-completion", a.markDailyCompletion)
	r.Get("/daily-completion/{week}", a.dailyCompletion)

	r.Get("/project/templates", a.studentProjectTemplates)
	r.Post("/project/optin", a.projectOptIn)
	r.Post("/project/auto-assign", a.projectAutoAssign)
	r.Post("/project/submit", a.projectSubmit)
	r.Get("/project/status", a.projectStatus)
}

func (a *API) studentInternship(w http.ResponseWriter, r *http.Request) {
	uid := principalOf(r).Subject
	acct, err := a.svc.Accounts.Get(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	in, err := a.svc.Internships.ForStudent(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acct, "internship": in})
}

func (a *API) studentWeeks(w http.ResponseWriter, r *http.Request) {
	weeks, err := a.svc.Internships.WeeksForStudent(r.Context(), principalOf(r).Subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"weeks": nonNil(weeks)})
}

func (a *API) studentAnnouncements(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Notifications.Announcements(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"announcements": nonNil(list)})
}

func (a *API) submitAssignment(w http.ResponseWriter, r *http.Request) {
	var in submission.Input
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	sub, err := a.svc.Submissions.Submit(r.Context(), principalOf(r).Subject, in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Assignment submitted successfully",
		"submission": sub,
	})
}

func (a *API) studentSubmissions(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Submissions.ListOwn(r.Context(), principalOf(r).Subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": nonNil(list)})
}

func (a *API) studentNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Notifications.List(r.Context(), principalOf(r).Subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": nonNil(list)})
}

func (a *API) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Notifications.MarkRead(r.Context(), principalOf(r).Subject, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Notification marked as read"})
}

func (a *API) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.svc.Notifications.MarkAllRead(r.Context(), principalOf(r).Subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("Marked %d notifications as read", n), "updated": n})
}

func (a *API) studentCertificates(w http.ResponseWriter, r *http.Request) {
	uid := principalOf(r).Subject
	acct, err := a.svc.Accounts.Get(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	certs, err := a.svc.Certificates.ListForUser(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"certificate_unlocked":         acct.CertificateUnlocked,
		"lor_unlocked":                 acct.LORUnlocked,
		"course_completion_percentage": acct.CompletionPercentage,
		"project_completion_status":    acct.ProjectStatus,
		"certificates":                 nonNil(certs),
	})
}

type dailyCompletionRequest struct {
	WeekNumber int   `json:"week_number"`
	Day        int   `json:"day"`
	Completed  *bool `json:"completed"`
}

func (a *API) markDailyCompletion(w http.ResponseWriter, r *http.Request) {
	var req dailyCompletionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	completed := req.Completed == nil || *req.Completed
	progress, err := a.svc.Internships.MarkDay(r.Context(), principalOf(r).Subject, req.WeekNumber, req.Day, completed)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (a *API) dailyCompletion(w http.ResponseWriter, r *http.Request) {
	week, err := strconv.Atoi(chi.URLParam(r, "week"))
	if err != nil || week < 1 {
		writeErrorCode(w, r, http.StatusBadRequest, "validation_failed", "week must be a positive integer")
		return
	}
	progress, err := a.svc.Internships.DailyProgress(r.Context(), principalOf(r).Subject, week)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type projectRequest struct {
	InternshipID string `json:"internship_id"`
	ProjectID    string `json:"project_id"`
	UploadLink   string `json:"upload_link"`
}

// studentInternshipID falls back to the internship of the student's track.
func (a *API) studentInternshipID(r *http.Request, explicit string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	in, err := a.svc.Internships.ForStudent(r.Context(), principalOf(r).Subject)
	if err != nil {
		return "", err
	}
	return in.ID, nil
}

func (a *API) studentProjectTemplates(w http.ResponseWriter, r *http.Request) {
	id, err := a.studentInternshipID(r, r.URL.Query().Get("internship_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := a.svc.Projects.ListTemplates(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": nonNil(list)})
}

func (a *API) projectOptIn(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	id, err := a.studentInternshipID(r, req.InternshipID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := a.svc.Projects.OptIn(r.Context(), principalOf(r).Subject, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Opted in for project assignment", "project": p})
}

func (a *API) projectAutoAssign(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	p, err := a.svc.Projects.AutoAssign(r.Context(), principalOf(r).Subject, req.InternshipID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Project assigned successfully", "project": p})
}

func (a *API) projectSubmit(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	p, err := a.svc.Projects.Submit(r.Context(), principalOf(r).Subject, req.ProjectID, req.UploadLink)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Project submitted successfully", "project": p})
}

func (a *API) projectStatus(w http.ResponseWriter, r *http.Request) {
	id, err := a.studentInternshipID(r, r.URL.Query().Get("internship_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := a.svc.Projects.Status(r.Context(), principalOf(r).Subject, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": p})
}

// userRequest is the common body of HR and admin actions on one account.
type userRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

func (req userRequest) validate() error {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.Validationf("Missing user_id")
	}
	return nil
}
