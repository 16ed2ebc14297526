package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"election-platform/internal/audit"
	"election-platform/internal/election"
	"election-platform/internal/registry"
	"election-platform/internal/reporting"
	"election-platform/internal/voters"
	"election-platform/internal/voting"
	"election-platform/pkg/logger"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// errorTable is checked in order with errors.Is.
var errorTable = []errorMapping{
	{voting.ErrNotFound, http.StatusNotFound, "not_found"},
	{voting.ErrForbidden, http.StatusForbidden, "forbidden"},
	{voting.ErrNotEligible, http.StatusForbidden, "not_eligible"},
	{voting.ErrNoActiveElection, http.StatusConflict, "no_active_election"},
	{voting.ErrNotStarted, http.StatusConflict, "not_started"},
	{voting.ErrEnded, http.StatusConflict, "ended"},
	{voting.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{voting.ErrDecryptFailure, http.StatusUnprocessableEntity, "decrypt_failure"},

	{election.ErrNotFound, http.StatusNotFound, "not_found"},
	{election.ErrDuplicate, http.StatusConflict, "duplicate"},
	{election.ErrInUse, http.StatusConflict, "in_use"},
	{election.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{election.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},

	{registry.ErrNotFound, http.StatusNotFound, "not_found"},
	{registry.ErrDuplicate, http.StatusConflict, "duplicate"},
	{registry.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},

	{voters.ErrNotFound, http.StatusNotFound, "not_found"},
	{voters.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{voters.ErrUsernameTaken, http.StatusConflict, "username_taken"},
	{voters.ErrRegNumberTaken, http.StatusConflict, "reg_number_taken"},
	{voters.ErrNotInRegistry, http.StatusUnprocessableEntity, "not_in_registry"},
	{voters.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{voters.ErrNotApproved, http.StatusForbidden, "not_approved"},
	{voters.ErrInvalidSecretCode, http.StatusForbidden, "invalid_secret_code"},

	{reporting.ErrNotPublished, http.StatusForbidden, "results_not_published"},
	{audit.ErrInvalidEntry, http.StatusBadRequest, "invalid_argument"},
}

// respondError writes the JSON error for err. Unknown errors are logged and
// reported as 500 without detail.
func respondError(c *gin.Context, err error) {
	for _, m := range errorTable {
		if !errors.Is(err, m.target) {
			continue
		}
		body := gin.H{"error": err.Error(), "code": m.code}
		var av *voting.AlreadyVotedError
		if errors.As(err, &av) && av.Existing != nil {
			body["existing_candidate"] = gin.H{"id": av.Existing.ID, "name": av.Existing.Name}
		}
		c.AbortWithStatusJSON(m.status, body)
		return
	}
	_ = c.Error(err)
	logger.FromGin(c).Error("request failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "invalid_argument"})
}
