package httpapi

import (
	"github.com/gin-gonic/gin"

	"election-platform/internal/rbac"
)

// RegisterRoutes mounts the /v1 API. authMW verifies access tokens; castLimit
// guards the cast endpoint and may be nil.
func RegisterRoutes(r gin.IRouter, h Handlers, authMW, castLimit gin.HandlerFunc) {
	v1 := r.Group("/v1")
	v1.Use(Origin())

	// public
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", h.RegisterVoter)
		authGroup.POST("/register-admin", h.RegisterAdmin)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	protected := v1.Group("")
	protected.Use(authMW)
	{
		protected.POST("/auth/logout", h.Logout)
		protected.GET("/me", h.Me)
		protected.GET("/election/window", h.Window)
		protected.GET("/results", h.Results)

		voter := protected.Group("")
		voter.Use(rbac.RequireAnyRole(rbac.RoleVoter))
		voter.GET("/ballot", h.Ballot)
		if castLimit != nil {
			voter.POST("/votes", castLimit, h.Cast)
		} else {
			voter.POST("/votes", h.Cast)
		}
	}

	admin := v1.Group("/admin")
	admin.Use(authMW, rbac.RequireAdmin())
	{
		admin.GET("/settings", h.GetSettings)
		admin.PUT("/settings", h.UpdateSettings)

		admin.GET("/positions", h.ListPositions)
		admin.POST("/positions", h.CreatePosition)
		admin.PUT("/positions/:id", h.UpdatePosition)
		admin.DELETE("/positions/:id", h.DeletePosition)
		admin.GET("/positions/:id/tally", h.Tally)
		admin.GET("/positions/:id/anonymized", h.AnonymizedAudit)

		admin.GET("/candidates", h.ListCandidates)
		admin.POST("/candidates", h.CreateCandidate)
		admin.PUT("/candidates/:id", h.UpdateCandidate)
		admin.DELETE("/candidates/:id", h.DeleteCandidate)

		admin.GET("/registry", h.ListRegistry)
		admin.POST("/registry", h.CreateRegistryEntry)
		admin.POST("/registry/import", h.ImportRegistry)
		admin.PATCH("/registry/:reg_number", h.UpdateRegistryEntry)

		admin.GET("/voters", h.ListVoters)
		admin.PUT("/voters/:id/approval", h.SetVoterApproval)

		admin.GET("/dashboard", h.Dashboard)
		admin.GET("/results", h.AdminResults)
		admin.GET("/results/export", h.ExportResults)
		admin.GET("/ballots", h.ListBallots)
		admin.GET("/reconcile", h.Reconcile)
		admin.GET("/audit", h.ListAudit)
	}
}
