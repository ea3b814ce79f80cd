// Package httpapi exposes the service as a loopback JSON API built on gin.
package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"classledger/internal/core"
	"classledger/internal/logging"
	"classledger/internal/persist"
	"classledger/internal/query"
	"classledger/internal/roster"
	"classledger/internal/store"
	"classledger/pkg/domain"
)

// maxImportBytes bounds the size of POST /api/import bodies.
const maxImportBytes = 32 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves the API routes.
type Handler struct {
	svc    *core.Service
	logger core.Logger
	now    func() time.Time
}

// NewHandler builds a handler over svc.
func NewHandler(svc *core.Service, logger core.Logger) *Handler {
	return &Handler{svc: svc, logger: logging.OrNoop(logger), now: time.Now}
}

// NewRouter returns an engine with recovery, request logging and every route registered.
func NewRouter(svc *core.Service, logger core.Logger) *gin.Engine {
	h := NewHandler(svc, logger)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))
	h.Register(r)
	return r
}

// Register mounts the routes under /api. POST /api/actions dispatches raw
// store actions; the typed write routes go through the checked service.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.GET("/stats", h.stats)
	api.GET("/students", h.listStudents)
	api.GET("/students/:id/groups", h.studentGroups)
	api.GET("/students/:id/grades", h.studentGrades)
	api.GET("/students/:id/attendance", h.studentAttendance)
	api.GET("/students/:id/payments", h.studentPayments)

	api.GET("/groups", h.listGroups)
	api.GET("/groups/:id/students", h.groupStudents)
	api.GET("/groups/:id/sessions", h.groupSessions)
	api.GET("/groups/:id/assessments", h.groupAssessments)
	api.GET("/groups/:id/gradebook", h.groupGradebook)

	api.GET("/sessions/upcoming", h.upcomingSessions)
	api.GET("/sessions/:id/attendance", h.sessionAttendance)
	api.GET("/sessions/:id/report", h.sessionReport)

	api.GET("/payments/outstanding", h.outstandingPayments)

	api.POST("/actions", h.dispatch)
	api.GET("/export", h.export)
	api.GET("/exports", h.listExports)
	api.POST("/import", h.importSnapshot)

	h.registerWrites(api)
}

func requestLogger(l core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug("http request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// --- Reads ---

func (h *Handler) stats(c *gin.Context) {
	d := h.svc.Snapshot()
	body := gin.H{"counts": query.Counts(d), "cascadeMode": h.svc.Store().CascadeMode()}
	if err := h.svc.LastSaveError(); err != nil {
		body["lastSaveError"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) listStudents(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Snapshot().Students)
}

func (h *Handler) listGroups(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Snapshot().Groups)
}

func (h *Handler) studentGroups(c *gin.Context) {
	c.JSON(http.StatusOK, query.GroupsForStudent(h.svc.Snapshot(), c.Param("id")))
}

func (h *Handler) studentGrades(c *gin.Context) {
	d := h.svc.Snapshot()
	id := c.Param("id")
	body := gin.H{"grades": query.GradesForStudent(d, id)}
	if avg, ok := query.StudentAverage(d, id); ok {
		body["averagePercent"] = avg
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) studentAttendance(c *gin.Context) {
	d := h.svc.Snapshot()
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"records": query.AttendanceForStudent(d, id),
		"summary": query.AttendanceSummaryForStudent(d, id),
	})
}

// studentPayments lists a student's payments in one group, or returns the
// single record for ?month=.
func (h *Handler) studentPayments(c *gin.Context) {
	groupID := c.Query("groupId")
	if groupID == "" {
		fail(c, http.StatusBadRequest, "groupId is required")
		return
	}
	d := h.svc.Snapshot()
	if month := c.Query("month"); month != "" {
		p, ok := query.PaymentStatusForStudentInMonth(d, c.Param("id"), groupID, month)
		if !ok {
			fail(c, http.StatusNotFound, "no payment record for "+month)
			return
		}
		c.JSON(http.StatusOK, p)
		return
	}
	c.JSON(http.StatusOK, query.PaymentsForStudentInGroup(d, c.Param("id"), groupID))
}

func (h *Handler) groupStudents(c *gin.Context) {
	c.JSON(http.StatusOK, query.StudentsInGroup(h.svc.Snapshot(), c.Param("id")))
}

func (h *Handler) groupSessions(c *gin.Context) {
	c.JSON(http.StatusOK, query.SessionsForGroup(h.svc.Snapshot(), c.Param("id")))
}

func (h *Handler) groupAssessments(c *gin.Context) {
	c.JSON(http.StatusOK, query.AssessmentsForGroup(h.svc.Snapshot(), c.Param("id")))
}

func (h *Handler) groupGradebook(c *gin.Context) {
	d := h.svc.Snapshot()
	g, ok := query.GroupByID(d, c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "group not found")
		return
	}
	gb := query.GroupGradebook(d, c.Param("id"))
	if c.Query("format") != "xlsx" {
		c.JSON(http.StatusOK, gb)
		return
	}
	var buf bytes.Buffer
	if err := roster.WriteGradebook(&buf, g, gb); err != nil {
		h.logger.Error("gradebook workbook failed", "error", err)
		fail(c, http.StatusInternalServerError, "gradebook workbook failed")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="gradebook-`+g.ID+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) sessionAttendance(c *gin.Context) {
	c.JSON(http.StatusOK, query.AttendanceForSession(h.svc.Snapshot(), c.Param("id")))
}

func (h *Handler) sessionReport(c *gin.Context) {
	r, ok := query.ReportForSession(h.svc.Snapshot(), c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "no report for session")
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) upcomingSessions(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, query.UpcomingSessions(h.svc.Snapshot(), h.now(), limit))
}

func (h *Handler) outstandingPayments(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		month = h.now().Format(domain.MonthLayout)
	}
	c.JSON(http.StatusOK, query.OutstandingPayments(h.svc.Snapshot(), month))
}

// --- Writes ---

type outcomeBody struct {
	Kind     store.Kind                `json:"kind"`
	Status   store.Status              `json:"status"`
	Entity   domain.EntityType         `json:"entity,omitempty"`
	ID       string                    `json:"id,omitempty"`
	Cascaded map[domain.EntityType]int `json:"cascaded,omitempty"`
}

func (h *Handler) dispatch(c *gin.Context) {
	var env store.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		fail(c, http.StatusBadRequest, "invalid envelope: "+err.Error())
		return
	}
	action, err := env.Decode()
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.svc.Dispatch(c.Request.Context(), action)
	body := toBody(out)
	switch {
	case core.IsNotFound(err):
		c.JSON(http.StatusNotFound, body)
	case out.Status == store.StatusCreated:
		c.JSON(http.StatusCreated, body)
	default:
		c.JSON(http.StatusOK, body)
	}
}

func (h *Handler) export(c *gin.Context) {
	exp, err := h.svc.Export(c.Request.Context())
	if err != nil && len(exp.Data) == 0 {
		h.logger.Error("export failed", "error", err)
		fail(c, http.StatusInternalServerError, "export failed")
		return
	}
	if exp.Key != "" {
		c.Header("X-Export-Key", exp.Key)
	}
	c.Header("Content-Disposition", `attachment; filename="`+exp.Name+`"`)
	c.Data(http.StatusOK, "application/json", exp.Data)
}

func (h *Handler) listExports(c *gin.Context) {
	infos, err := h.svc.ListExports(c.Request.Context())
	if errors.Is(err, persist.ErrNoArtifactStore) {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("list exports failed", "error", err)
		fail(c, http.StatusInternalServerError, "list exports failed")
		return
	}
	c.JSON(http.StatusOK, infos)
}

func (h *Handler) importSnapshot(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		fail(c, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if err := h.svc.Import(c.Request.Context(), raw); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": query.Counts(h.svc.Snapshot())})
}
