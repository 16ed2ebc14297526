package voters

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"election-platform/internal/audit"
	"election-platform/internal/rbac"
	"election-platform/internal/registry"
	"election-platform/pkg/logger"
	"election-platform/pkg/utils"
)

var (
	ErrNotFound           = errors.New("voters: identity not found")
	ErrInvalidArgument    = errors.New("voters: invalid argument")
	ErrUsernameTaken      = errors.New("voters: username already taken")
	ErrRegNumberTaken     = errors.New("voters: reg number already has an account")
	ErrNotInRegistry      = errors.New("voters: reg number not in active registry")
	ErrInvalidCredentials = errors.New("voters: invalid credentials")
	ErrNotApproved        = errors.New("voters: account pending approval")
	ErrInvalidSecretCode  = errors.New("voters: invalid admin secret code")
)

const minPasswordLen = 8

// RegistryReader is the registry access needed for voter sign-up.
type RegistryReader interface {
	Get(ctx context.Context, regNumber string) (registry.Entry, error)
}

type Auditor interface {
	Record(ctx context.Context, actorID string, action audit.Action, description string) error
}

type Service struct {
	repo        Repository
	registry    RegistryReader
	audit       Auditor
	adminSecret string
	bcryptCost  int
	clock       func() time.Time

	// dummyHash keeps failed lookups as slow as failed password checks.
	dummyHash string
}

type Options struct {
	AdminSecretCode string
	BcryptCost      int
}

func NewService(repo Repository, reg RegistryReader, auditor Auditor, opts Options) *Service {
	s := &Service{
		repo:        repo,
		registry:    reg,
		audit:       auditor,
		adminSecret: opts.AdminSecretCode,
		bcryptCost:  opts.BcryptCost,
		clock:       time.Now,
	}
	s.dummyHash, _ = utils.HashPassword("dummy-password-for-timing", s.bcryptCost)
	return s
}

// RegisterVoter creates a voter identity bound to an active registry entry.
// Profile fields are copied from the registry; new voters start approved.
func (s *Service) RegisterVoter(ctx context.Context, req VoterRegistration) (Identity, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.RegNumber = registry.NormalizeRegNumber(req.RegNumber)
	if req.Username == "" || req.RegNumber == "" || len(req.Password) < minPasswordLen {
		return Identity{}, ErrInvalidArgument
	}

	entry, err := s.registry.Get(ctx, req.RegNumber)
	if errors.Is(err, registry.ErrNotFound) {
		return Identity{}, ErrNotInRegistry
	}
	if err != nil {
		return Identity{}, err
	}
	if !entry.Active {
		return Identity{}, ErrNotInRegistry
	}
	if _, err := s.repo.GetByRegNumber(ctx, req.RegNumber); err == nil {
		return Identity{}, ErrRegNumberTaken
	} else if !errors.Is(err, ErrNotFound) {
		return Identity{}, err
	}

	hash, err := utils.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = entry.Email
	}
	now := s.clock().UTC()
	id := Identity{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         rbac.RoleVoter,
		RegNumber:    entry.RegNumber,
		Approved:     true,
		FullName:     entry.FullName,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		Department:   entry.Department,
		YearOfStudy:  entry.YearOfStudy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The unique constraints still decide concurrent sign-ups for the same reg number.
	if err := s.repo.Create(ctx, id); err != nil {
		return Identity{}, err
	}
	logger.From(ctx).Info("voter registered", "identity_id", id.ID)
	return id, nil
}

// RegisterAdmin creates an admin identity when the caller knows the configured secret code.
func (s *Service) RegisterAdmin(ctx context.Context, req AdminRegistration) (Identity, error) {
	if s.adminSecret == "" || subtle.ConstantTimeCompare([]byte(req.SecretCode), []byte(s.adminSecret)) != 1 {
		return Identity{}, ErrInvalidSecretCode
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < minPasswordLen {
		return Identity{}, ErrInvalidArgument
	}
	hash, err := utils.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.clock().UTC()
	id := Identity{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         rbac.RoleAdmin,
		Approved:     true,
		FullName:     strings.TrimSpace(req.FullName),
		Email:        strings.TrimSpace(req.Email),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, id); err != nil {
		return Identity{}, err
	}
	s.record(ctx, id.ID, audit.ActionAdmin, fmt.Sprintf("admin account %s created", id.Username))
	return id, nil
}

// Authenticate checks credentials and that the identity holds the claimed role.
// Voters may log in with their reg number in place of a username.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (Identity, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return Identity{}, ErrInvalidCredentials
	}
	if req.Role != "" && !req.Role.Valid() {
		return Identity{}, ErrInvalidCredentials
	}

	id, err := s.repo.GetByUsername(ctx, login)
	if errors.Is(err, ErrNotFound) && req.Role == rbac.RoleVoter {
		id, err = s.repo.GetByRegNumber(ctx, registry.NormalizeRegNumber(login))
	}
	if errors.Is(err, ErrNotFound) {
		utils.VerifyPassword(s.dummyHash, req.Password)
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}
	if !utils.VerifyPassword(id.PasswordHash, req.Password) {
		return Identity{}, ErrInvalidCredentials
	}
	if req.Role != "" && id.Role != req.Role {
		return Identity{}, ErrInvalidCredentials
	}
	if !id.Approved {
		return Identity{}, ErrNotApproved
	}

	s.record(ctx, id.ID, audit.ActionLogin, fmt.Sprintf("%s logged in as %s", id.Username, id.Role))
	return id, nil
}

func (s *Service) Logout(ctx context.Context, identityID string) {
	s.record(ctx, identityID, audit.ActionLogout, "logged out")
}

// SetApproval toggles whether a voter may log in and vote.
func (s *Service) SetApproval(ctx context.Context, actorID, identityID string, approved bool) (Identity, error) {
	id, err := s.repo.Get(ctx, identityID)
	if err != nil {
		return Identity{}, err
	}
	if !id.IsVoter() {
		return Identity{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	if err := s.repo.SetApproval(ctx, identityID, approved, now); err != nil {
		return Identity{}, err
	}
	id.Approved = approved
	id.UpdatedAt = now

	verb := "revoked approval for"
	if approved {
		verb = "approved"
	}
	s.record(ctx, actorID, audit.ActionAdmin, fmt.Sprintf("%s voter %s", verb, id.Username))
	return id, nil
}

// ResetCompleted clears every voter's completion flag. It runs when a new
// active position appears, since nobody holds a ballot for it yet.
func (s *Service) ResetCompleted(ctx context.Context) error {
	n, err := s.repo.ResetCompleted(ctx, s.clock().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		logger.From(ctx).Info("voter completion flags cleared", "voters", n)
	}
	return nil
}

// MarkCompleted records that the voter has a ballot for every active position.
func (s *Service) MarkCompleted(ctx context.Context, identityID string) error {
	return s.repo.MarkCompleted(ctx, identityID, s.clock().UTC())
}

func (s *Service) Get(ctx context.Context, identityID string) (Identity, error) {
	return s.repo.Get(ctx, identityID)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Identity, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Counts(ctx context.Context) (Counts, error) {
	return s.repo.Counts(ctx)
}

func (s *Service) record(ctx context.Context, actorID string, action audit.Action, description string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, actorID, action, description); err != nil {
		logger.From(ctx).Warn("audit append failed", "action", string(action), "err", err)
	}
}
