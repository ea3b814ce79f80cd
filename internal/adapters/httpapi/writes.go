package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"classledger/internal/core"
	"classledger/internal/store"
	"classledger/pkg/domain"
)

// registerWrites mounts the checked write routes. Each goes through the
// service, so references and field rules are enforced before dispatch.
func (h *Handler) registerWrites(api gin.IRouter) {
	api.POST("/students", h.createStudent)
	api.PUT("/students/:id", h.updateStudent)
	api.DELETE("/students/:id", h.deleteBy(h.svc.DeleteStudent))

	api.POST("/groups", h.createGroup)
	api.PUT("/groups/:id", h.updateGroup)
	api.DELETE("/groups/:id", h.deleteBy(h.svc.DeleteGroup))
	api.POST("/groups/:id/students", h.addMember)
	api.DELETE("/groups/:id/students/:studentId", h.removeMember)

	api.POST("/sessions", h.createSession)
	api.PUT("/sessions/:id", h.updateSession)
	api.DELETE("/sessions/:id", h.deleteBy(h.svc.DeleteSession))
	api.POST("/sessions/:id/attendance", h.markAttendance)
	api.PUT("/sessions/:id/report", h.recordReport)
	api.DELETE("/reports/:id", h.deleteBy(h.svc.DeleteReport))

	api.POST("/assessments", h.createAssessment)
	api.PUT("/assessments/:id", h.updateAssessment)
	api.DELETE("/assessments/:id", h.deleteBy(h.svc.DeleteAssessment))
	api.PUT("/grades", h.recordGrade)

	api.PUT("/payments", h.recordPayment)
	api.DELETE("/payments/:id", h.deleteBy(h.svc.DeletePayment))
}

// writeError maps service errors: validation to 422, missing references to 404.
func (h *Handler) writeError(c *gin.Context, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "fields": ve.Fields})
	case core.IsNotFound(err):
		fail(c, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("write failed", "route", c.FullPath(), "error", err)
		fail(c, http.StatusInternalServerError, "write failed")
	}
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, status int, v any, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(status, v)
}

func toBody(out store.Outcome) outcomeBody {
	return outcomeBody{Kind: out.Kind, Status: out.Status, Entity: out.Entity, ID: out.ID, Cascaded: out.Cascaded}
}

func (h *Handler) deleteBy(del func(ctx context.Context, id string) (store.Outcome, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := del(c.Request.Context(), c.Param("id"))
		h.respond(c, http.StatusOK, toBody(out), err)
	}
}

func (h *Handler) createStudent(c *gin.Context) {
	var v domain.Student
	if !bind(c, &v) {
		return
	}
	created, err := h.svc.CreateStudent(c.Request.Context(), v)
	h.respond(c, http.StatusCreated, created, err)
}

func (h *Handler) updateStudent(c *gin.Context) {
	var v domain.Student
	if !bind(c, &v) {
		return
	}
	v.ID = c.Param("id")
	updated, err := h.svc.UpdateStudent(c.Request.Context(), v)
	h.respond(c, http.StatusOK, updated, err)
}

func (h *Handler) createGroup(c *gin.Context) {
	var v domain.Group
	if !bind(c, &v) {
		return
	}
	created, err := h.svc.CreateGroup(c.Request.Context(), v)
	h.respond(c, http.StatusCreated, created, err)
}

func (h *Handler) updateGroup(c *gin.Context) {
	var v domain.Group
	if !bind(c, &v) {
		return
	}
	v.ID = c.Param("id")
	updated, err := h.svc.UpdateGroup(c.Request.Context(), v)
	h.respond(c, http.StatusOK, updated, err)
}

func (h *Handler) addMember(c *gin.Context) {
	var v struct {
		StudentID string `json:"studentId"`
	}
	if !bind(c, &v) {
		return
	}
	out, err := h.svc.AddStudentToGroup(c.Request.Context(), v.StudentID, c.Param("id"))
	status := http.StatusOK
	if out.Status == store.StatusCreated {
		status = http.StatusCreated
	}
	h.respond(c, status, toBody(out), err)
}

func (h *Handler) removeMember(c *gin.Context) {
	out, err := h.svc.RemoveStudentFromGroup(c.Request.Context(), c.Param("studentId"), c.Param("id"))
	h.respond(c, http.StatusOK, toBody(out), err)
}

func (h *Handler) createSession(c *gin.Context) {
	var v domain.Session
	if !bind(c, &v) {
		return
	}
	created, err := h.svc.CreateSession(c.Request.Context(), v)
	h.respond(c, http.StatusCreated, created, err)
}

func (h *Handler) updateSession(c *gin.Context) {
	var v domain.Session
	if !bind(c, &v) {
		return
	}
	v.ID = c.Param("id")
	updated, err := h.svc.UpdateSession(c.Request.Context(), v)
	h.respond(c, http.StatusOK, updated, err)
}

// markAttendance accepts either one {studentId, status} or {marks: [...]}.
func (h *Handler) markAttendance(c *gin.Context) {
	var v struct {
		StudentID string                  `json:"studentId"`
		Status    domain.AttendanceStatus `json:"status"`
		Marks     []store.AttendanceMark  `json:"marks"`
	}
	if !bind(c, &v) {
		return
	}
	marks := v.Marks
	if v.StudentID != "" {
		marks = append(marks, store.AttendanceMark{StudentID: v.StudentID, Status: v.Status})
	}
	if len(marks) == 0 {
		fail(c, http.StatusBadRequest, "no attendance marks")
		return
	}
	out, err := h.svc.MarkAttendance(c.Request.Context(), c.Param("id"), marks)
	h.respond(c, http.StatusOK, toBody(out), err)
}

func (h *Handler) recordReport(c *gin.Context) {
	var v domain.SessionReport
	if !bind(c, &v) {
		return
	}
	v.SessionID = c.Param("id")
	saved, err := h.svc.RecordReport(c.Request.Context(), v)
	h.respond(c, http.StatusOK, saved, err)
}

func (h *Handler) createAssessment(c *gin.Context) {
	var v domain.Assessment
	if !bind(c, &v) {
		return
	}
	created, err := h.svc.CreateAssessment(c.Request.Context(), v)
	h.respond(c, http.StatusCreated, created, err)
}

func (h *Handler) updateAssessment(c *gin.Context) {
	var v domain.Assessment
	if !bind(c, &v) {
		return
	}
	v.ID = c.Param("id")
	updated, err := h.svc.UpdateAssessment(c.Request.Context(), v)
	h.respond(c, http.StatusOK, updated, err)
}

func (h *Handler) recordGrade(c *gin.Context) {
	var v domain.Grade
	if !bind(c, &v) {
		return
	}
	saved, err := h.svc.RecordGrade(c.Request.Context(), v.AssessmentID, v.StudentID, v.Score, v.Comments)
	h.respond(c, http.StatusOK, saved, err)
}

func (h *Handler) recordPayment(c *gin.Context) {
	var v domain.PaymentRecord
	if !bind(c, &v) {
		return
	}
	saved, err := h.svc.RecordPayment(c.Request.Context(), v)
	h.respond(c, http.StatusOK, saved, err)
}
