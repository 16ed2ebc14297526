package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"election-platform/internal/audit"
	"election-platform/internal/auth"
	"election-platform/internal/election"
	"election-platform/internal/rbac"
	"election-platform/internal/registry"
	"election-platform/internal/voters"
	"election-platform/pkg/logger"
)

func actorID(c *gin.Context) string {
	uid, _ := auth.UserID(c.Request.Context())
	return uid
}

// --- Election settings ---

func (h Handlers) GetSettings(c *gin.Context) {
	st, err := h.Elections.Settings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) UpdateSettings(c *gin.Context) {
	var req election.SettingsInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	st, err := h.Elections.UpdateSettings(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// --- Positions ---

func (h Handlers) ListPositions(c *gin.Context) {
	ps, err := h.Elections.ListPositions(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ps)
}

func (h Handlers) CreatePosition(c *gin.Context) {
	var req election.PositionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	p, err := h.Elections.CreatePosition(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h Handlers) UpdatePosition(c *gin.Context) {
	var req election.PositionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	p, err := h.Elections.UpdatePosition(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) DeletePosition(c *gin.Context) {
	if err := h.Elections.DeletePosition(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Candidates ---

func (h Handlers) ListCandidates(c *gin.Context) {
	cs, err := h.Elections.ListCandidates(c.Request.Context(), c.Query("position_id"), c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (h Handlers) CreateCandidate(c *gin.Context) {
	var req election.CandidateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	cand, err := h.Elections.CreateCandidate(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cand)
}

func (h Handlers) UpdateCandidate(c *gin.Context) {
	var req election.CandidateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	cand, err := h.Elections.UpdateCandidate(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cand)
}

func (h Handlers) DeleteCandidate(c *gin.Context) {
	if err := h.Elections.DeleteCandidate(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Registry ---

func (h Handlers) ListRegistry(c *gin.Context) {
	es, err := h.Registry.List(c.Request.Context(), registry.ListFilter{
		ActiveOnly: c.Query("active") == "true",
		Department: c.Query("department"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, es)
}

func (h Handlers) CreateRegistryEntry(c *gin.Context) {
	var req registry.Entry
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	e, err := h.Registry.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h Handlers) UpdateRegistryEntry(c *gin.Context) {
	var req registry.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	e, err := h.Registry.Update(c.Request.Context(), actorID(c), c.Param("reg_number"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h Handlers) ImportRegistry(c *gin.Context) {
	var req []registry.Entry
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	res, err := h.Registry.Import(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Voter identities ---

func (h Handlers) ListVoters(c *gin.Context) {
	f := voters.ListFilter{
		PendingOnly:   c.Query("pending") == "true",
		CompletedOnly: c.Query("completed") == "true",
	}
	if raw := c.Query("role"); raw != "" {
		role, ok := rbac.ParseRole(raw)
		if !ok {
			badRequest(c, "unknown role")
			return
		}
		f.Role = role
	}
	ids, err := h.Voters.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

type approvalRequest struct {
	Approved bool `json:"approved"`
}

func (h Handlers) SetVoterApproval(c *gin.Context) {
	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	id, err := h.Voters.SetApproval(c.Request.Context(), actorID(c), c.Param("id"), req.Approved)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, id)
}

// --- Reporting and audit ---

func (h Handlers) Dashboard(c *gin.Context) {
	d, err := h.Reporting.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// AdminResults shows results whether or not they are published.
func (h Handlers) AdminResults(c *gin.Context) {
	h.writeResults(c, rbac.RoleAdmin)
}

func (h Handlers) ExportResults(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Reporting.ExportCSV(c.Request.Context(), actorID(c), &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "election-results.csv"))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h Handlers) Tally(c *gin.Context) {
	t, err := h.Voting.Tally(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// AnonymizedAudit decrypts a position's anonymized ballots.
func (h Handlers) AnonymizedAudit(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.Elections.GetPosition(ctx, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	report, err := h.Voting.AuditAnonymized(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if h.Audit != nil {
		if err := h.Audit.Record(ctx, actorID(c), audit.ActionAdmin, fmt.Sprintf("decrypted %d anonymized ballots", len(report.Ballots))); err != nil {
			logger.FromGin(c).Warn("audit append failed", "action", string(audit.ActionAdmin), "err", err)
		}
	}
	c.JSON(http.StatusOK, report)
}

func (h Handlers) Reconcile(c *gin.Context) {
	drift, err := h.Voting.Reconcile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consistent": len(drift) == 0, "discrepancies": drift})
}

func (h Handlers) ListBallots(c *gin.Context) {
	bs, err := h.Voting.ListBallots(c.Request.Context(), c.Query("position_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bs)
}

func (h Handlers) ListAudit(c *gin.Context) {
	f := audit.Filter{Action: audit.Action(c.Query("action")), ActorID: c.Query("actor_id")}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		f.Limit = n
	}
	es, err := h.Audit.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, es)
}
