package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"election-platform/internal/election"
	"election-platform/internal/rbac"
)

// Window reports the voting window as the server sees it now.
func (h Handlers) Window(c *gin.Context) {
	w, err := h.Elections.CurrentWindow(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	now := h.now().UTC()
	c.JSON(http.StatusOK, gin.H{
		"status":       w.Status(now),
		"is_active":    w.Active,
		"voting_start": w.Start,
		"voting_end":   w.End,
		"server_time":  now,
	})
}

type ballotSectionView struct {
	election.BallotSection
	// VotedCandidateID is set once the caller has voted for this position.
	VotedCandidateID string `json:"voted_candidate_id,omitempty"`
}

// Ballot lists what the caller can vote on, with their earlier choices marked.
func (h Handlers) Ballot(c *gin.Context) {
	id, ok := h.currentIdentity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sections, err := h.Elections.Ballot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	mine, err := h.Voting.VoterBallots(ctx, id.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	voted := make(map[string]string, len(mine))
	for _, b := range mine {
		voted[b.PositionID] = b.CandidateID
	}
	eligible, err := h.Voting.IsEligible(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	w, err := h.Elections.CurrentWindow(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]ballotSectionView, 0, len(sections))
	for _, s := range sections {
		out = append(out, ballotSectionView{BallotSection: s, VotedCandidateID: voted[s.Position.ID]})
	}
	c.JSON(http.StatusOK, gin.H{
		"window_status": w.Status(h.now().UTC()),
		"eligible":      eligible,
		"has_voted":     id.HasVoted,
		"positions":     out,
	})
}

type castRequest struct {
	CandidateID string `json:"candidate_id"`
}

// Cast records one ballot for the caller.
func (h Handlers) Cast(c *gin.Context) {
	var req castRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CandidateID == "" {
		badRequest(c, "candidate_id required")
		return
	}
	id, ok := h.currentIdentity(c)
	if !ok {
		return
	}
	receipt, err := h.Voting.CastVote(c.Request.Context(), id, req.CandidateID, h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// Results is the published results view for any signed-in identity.
func (h Handlers) Results(c *gin.Context) {
	id, ok := h.currentIdentity(c)
	if !ok {
		return
	}
	h.writeResults(c, id.Role)
}

func (h Handlers) writeResults(c *gin.Context, viewer rbac.Role) {
	res, err := h.Reporting.Results(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
