package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"election-platform/internal/auth"
	"election-platform/internal/voters"
	"election-platform/pkg/logger"
)

func (h Handlers) RegisterVoter(c *gin.Context) {
	var req voters.VoterRegistration
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	id, err := h.Voters.RegisterVoter(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, id)
}

func (h Handlers) RegisterAdmin(c *gin.Context) {
	var req voters.AdminRegistration
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	id, err := h.Voters.RegisterAdmin(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, id)
}

type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Identity     voters.Identity `json:"identity"`
}

// Login checks credentials and issues a JWT token pair.
func (h Handlers) Login(c *gin.Context) {
	var req voters.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	id, err := h.Voters.Authenticate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issueTokens(c, id)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new pair. The identity is re-read so
// a revoked approval takes effect here.
func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		badRequest(c, "refresh_token required")
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	id, err := h.Voters.Get(c.Request.Context(), claims.UserID)
	if errors.Is(err, voters.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if !id.Approved {
		respondError(c, voters.ErrNotApproved)
		return
	}
	h.issueTokens(c, id)
}

func (h Handlers) issueTokens(c *gin.Context, id voters.Identity) {
	pair, err := h.Auth.IssuePair(h.now(), id.ID, id.Role.String())
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		Identity:     id,
	})
}

// Logout revokes the presented access token until it would have expired.
func (h Handlers) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	if ref, ok := auth.Token(ctx); ok && h.Revoked != nil {
		if err := h.Revoked.Revoke(ctx, ref.ID, time.Until(ref.ExpiresAt)); err != nil {
			logger.FromGin(c).Error("token revoke failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "logout unavailable"})
			return
		}
	}
	h.Voters.Logout(ctx, uid)
	c.Status(http.StatusNoContent)
}

// Me returns the caller's identity and current eligibility.
func (h Handlers) Me(c *gin.Context) {
	id, ok := h.currentIdentity(c)
	if !ok {
		return
	}
	eligible, err := h.Voting.IsEligible(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": id, "eligible": eligible})
}

// currentIdentity loads the identity behind the access token. It writes the
// error response itself and returns false on failure.
func (h Handlers) currentIdentity(c *gin.Context) (voters.Identity, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return voters.Identity{}, false
	}
	id, err := h.Voters.Get(c.Request.Context(), uid)
	if errors.Is(err, voters.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown identity"})
		return voters.Identity{}, false
	}
	if err != nil {
		respondError(c, err)
		return voters.Identity{}, false
	}
	return id, true
}
