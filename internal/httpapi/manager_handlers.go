package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/internship"
	"vedarc.org/internal/notification"
	"vedarc.org/internal/project"
	"vedarc.org/internal/submission"
)

func (a *API) managerRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(auth.PermInternshipsManage))
		r.Get("/internships", a.listInternships)
		r.Post("/internships", a.createInternship)
		r.Put("/internships/{id}", a.updateInternship)
		r.Delete("/internships/{id}", a.deleteInternship)
		r.Get("/internships/{id}/weeks", a.listWeeks)
		r.Post("/internships/{id}/weeks", a.addWeek)
		r.Put("/internships/{id}/weeks/{week}", a.updateWeek)
		r.Delete("/internships/{id}/weeks/{week}", a.deleteWeek)
		r.Get("/internships/{id}/students", a.internshipStudents)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(auth.PermSubmissionsReview))
		r.Get("/internships/{id}/submissions", a.internshipSubmissions)
		r.Get("/submissions", a.listSubmissions)
		r.Post("/submissions/{id}/review", a.reviewSubmission)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(auth.PermGatesUnlock))
		r.Post("/certificates/unlock", a.unlockCertificate)
		r.Post("/certificates/bulk-unlock", a.bulkUnlock)
		r.Post("/recalculate-completion", a.recalculateCompletion)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(auth.PermProjectsManage))
		r.Get("/project/templates", a.listTemplates)
		r.Post("/project/templates", a.createTemplate)
		r.Put("/project/templates/{id}", a.updateTemplate)
		r.Delete("/project/templates/{id}", a.deleteTemplate)
		r.Post("/project/assign", a.assignProject)
		r.Post("/project/review", a.reviewProject)
		r.Get("/project/list", a.listProjects)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequirePermission(auth.PermAnnouncementsPublish))
		r.Get("/announcements", a.studentAnnouncements)
		r.Post("/announcements", a.createAnnouncement)
		r.Put("/announcements/{id}", a.updateAnnouncement)
		r.Delete("/announcements/{id}", a.deleteAnnouncement)
	})
}

// --- internships ---

func (a *API) listInternships(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Internships.List(r.Context(), false)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"internships": nonNil(list)})
}

func (a *API) createInternship(w http.ResponseWriter, r *http.Request) {
	var in internship.Input
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	created, err := a.svc.Internships.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Internship created successfully", "internship": created})
}

func (a *API) updateInternship(w http.ResponseWriter, r *http.Request) {
	var in internship.Input
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	updated, err := a.svc.Internships.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Internship updated successfully", "internship": updated})
}

func (a *API) deleteInternship(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Internships.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Internship deleted successfully"})
}

func (a *API) listWeeks(w http.ResponseWriter, r *http.Request) {
	in, err := a.svc.Internships.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	weeks, err := a.svc.Internships.Weeks(r.Context(), in.TrackName)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"weeks": nonNil(weeks)})
}

func (a *API) addWeek(w http.ResponseWriter, r *http.Request) {
	var in internship.WeekInput
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	week, err := a.svc.Internships.AddWeek(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Week created successfully", "week": week})
}

func weekParam(r *http.Request) (int, error) {
	week, err := strconv.Atoi(chi.URLParam(r, "week"))
	if err != nil || week < 1 {
		return 0, domain.Validationf("week must be a positive integer")
	}
	return week, nil
}

func (a *API) updateWeek(w http.ResponseWriter, r *http.Request) {
	week, err := weekParam(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var in internship.WeekInput
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	updated, err := a.svc.Internships.UpdateWeek(r.Context(), chi.URLParam(r, "id"), week, in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Week updated successfully", "week": updated})
}

func (a *API) deleteWeek(w http.ResponseWriter, r *http.Request) {
	week, err := weekParam(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := a.svc.Internships.DeleteWeek(r.Context(), chi.URLParam(r, "id"), week); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Week deleted successfully"})
}

func (a *API) internshipStudents(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Internships.Students(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": nonNil(list), "total": len(list)})
}

// --- submissions ---

func submissionFilter(r *http.Request, track string) (domain.SubmissionFilter, error) {
	q := r.URL.Query()
	f := domain.SubmissionFilter{Track: track, Status: domain.SubmissionStatus(q.Get("status"))}
	if f.Track == "" {
		f.Track = q.Get("track")
	}
	if raw := strings.TrimSpace(q.Get("week")); raw != "" {
		week, err := strconv.Atoi(raw)
		if err != nil || week < 1 {
			return f, domain.Validationf("week must be a positive integer")
		}
		f.Week = week
	}
	return f, nil
}

func (a *API) internshipSubmissions(w http.ResponseWriter, r *http.Request) {
	in, err := a.svc.Internships.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.writeSubmissions(w, r, in.TrackName)
}

func (a *API) listSubmissions(w http.ResponseWriter, r *http.Request) {
	a.writeSubmissions(w, r, "")
}

func (a *API) writeSubmissions(w http.ResponseWriter, r *http.Request, track string) {
	f, err := submissionFilter(r, track)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := a.svc.Submissions.ListForTrack(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": nonNil(list)})
}

func (a *API) reviewSubmission(w http.ResponseWriter, r *http.Request) {
	var d submission.Decision
	if err := decodeJSON(w, r, &d); err != nil {
		badRequest(w, r, err)
		return
	}
	sub, err := a.svc.Submissions.Review(r.Context(), chi.URLParam(r, "id"), d)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Submission reviewed successfully", "submission": sub})
}

// --- gates ---

type gateRequest struct {
	UserID          string   `json:"user_id"`
	UserIDs         []string `json:"user_ids"`
	CertificateType string   `json:"certificate_type"`
	Approved        *bool    `json:"approved"`
}

func (req gateRequest) certificateType() (domain.CertificateType, error) {
	if strings.TrimSpace(req.CertificateType) == "" {
		return "", domain.Validationf("Missing user_id or certificate_type")
	}
	return domain.ParseCertificateType(req.CertificateType)
}

func (a *API) unlockCertificate(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	typ, err := req.certificateType()
	if err == nil && strings.TrimSpace(req.UserID) == "" {
		err = domain.Validationf("Missing user_id or certificate_type")
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	acct, err := a.svc.Gates.Unlock(r.Context(), req.UserID, typ)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("%s unlocked for %s", typ.DisplayName(), acct.UserID),
		"user":    acct,
	})
}

func (a *API) bulkUnlock(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	typ, err := req.certificateType()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	res, err := a.svc.Gates.BulkUnlock(r.Context(), req.UserIDs, typ)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": res.Summary("unlock"), "results": res})
}

func (a *API) recalculateCompletion(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) != "" {
		acct, err := a.svc.Gates.RecalculateCompletion(r.Context(), req.UserID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":                      "Completion recalculated",
			"user_id":                      acct.UserID,
			"course_completion_percentage": acct.CompletionPercentage,
		})
		return
	}
	n, err := a.svc.Gates.RecalculateAll(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Recalculated completion for %d students", n),
		"updated": n,
	})
}

// --- projects ---

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Projects.ListTemplates(r.Context(), r.URL.Query().Get("internship_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": nonNil(list)})
}

func (a *API) createTemplate(w http.ResponseWriter, r *http.Request) {
	var in project.TemplateInput
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	t, err := a.svc.Projects.CreateTemplate(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Project template created", "template": t})
}

func (a *API) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var in project.TemplateInput
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	t, err := a.svc.Projects.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Project template updated", "template": t})
}

func (a *API) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Projects.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Project template deleted"})
}

type assignRequest struct {
	UserID     string `json:"user_id"`
	TemplateID string `json:"template_id"`
}

func (a *API) assignProject(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	p, err := a.svc.Projects.AssignFromTemplate(r.Context(), req.UserID, req.TemplateID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Project assigned successfully", "project": p})
}

type projectReviewRequest struct {
	ProjectID string `json:"project_id"`
	Decision  string `json:"decision"`
	Feedback  string `json:"feedback"`
}

func (a *API) reviewProject(w http.ResponseWriter, r *http.Request) {
	var req projectReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	p, err := a.svc.Projects.Review(r.Context(), req.ProjectID, domain.ProjectStatus(req.Decision), req.Feedback)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("Project %s", strings.ToLower(string(p.Status))), "project": p})
}

func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Projects.List(r.Context(), r.URL.Query().Get("internship_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": nonNil(list)})
}

// --- announcements ---

type announcementRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (a *API) createAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req announcementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	ann, err := a.svc.Notifications.Announce(r.Context(), req.Title, req.Content, principalOf(r).Subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Announcement created", "announcement": ann})
}

func (a *API) updateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var in notification.AnnouncementInput
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	ann, err := a.svc.Notifications.UpdateAnnouncement(r.Context(), chi.URLParam(r, "id"), in, principalOf(r).Subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Announcement updated successfully", "announcement": ann})
}

func (a *API) deleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Notifications.DeleteAnnouncement(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Announcement deleted successfully"})
}
