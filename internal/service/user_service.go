package service

import (
	"context"
	"strings"
	"time"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/auth"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/store"
	"marketplace-backoffice/internal/util"

	"go.uber.org/zap"
)

// BirthDateLayout is the dd/mm/yyyy format accepted for birth dates
const BirthDateLayout = "02/01/2006"

const minimumAge = 18

// UserStore is the persistence used for users and sessions
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User, roleIDs []int64) error
	AssignRolesToUser(ctx context.Context, userID int64, roleIDs []int64) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, filter store.UserFilter) ([]models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	GetRoleByDescription(ctx context.Context, description string) (*models.Role, error)
}

// TokenIssuer signs session tokens
type TokenIssuer interface {
	Issue(userID int64, roleIDs []int64) (string, time.Time, error)
}

// UserService manages users and sessions
type UserService struct {
	store  UserStore
	tokens TokenIssuer
	now    func() time.Time
	logger *zap.Logger
}

func NewUserService(store UserStore, tokens TokenIssuer) *UserService {
	return &UserService{
		store:  store,
		tokens: tokens,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// CreateUserRequest represents a request to register a user
type CreateUserRequest struct {
	Name      string  `json:"name" binding:"required"`
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required"`
	BirthDate string  `json:"birth_date" binding:"required"`
	Roles     []int64 `json:"roles"`
}

// LoginRequest represents a session request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    int64     `json:"user_id"`
}

// CreateUser registers an adult user with an optional set of roles
func (s *UserService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.CreateUser")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.InvalidInput("name is required")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, apperr.InvalidInput("email is required")
	}

	birthDate, err := time.Parse(BirthDateLayout, strings.TrimSpace(req.BirthDate))
	if err != nil {
		return nil, apperr.InvalidInput("birth_date must be a valid dd/mm/yyyy date")
	}
	if age(birthDate, s.now()) < minimumAge {
		return nil, apperr.InvalidInput("user must be at least %d years old", minimumAge)
	}

	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("email %s is already registered", email)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		BirthDate:    birthDate,
	}
	if err := s.store.CreateUser(ctx, user, dedupeIDs(req.Roles)); err != nil {
		return nil, err
	}

	s.logger.Info("user created", zap.Int64("user_id", user.ID))
	return user, nil
}

func validatePassword(password string) error {
	chars := []rune(password)
	if len(chars) < 4 {
		return apperr.InvalidInput("password must have at least 4 characters")
	}
	for _, c := range chars[1:] {
		if c != chars[0] {
			return nil
		}
	}
	return apperr.InvalidInput("password must not repeat a single character")
}

// age returns the completed years between birth and now
func age(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}

// Login checks credentials and issues a token carrying the user's roles.
// Unknown emails and wrong passwords fail identically.
func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Login")
	defer span.End()

	invalid := apperr.InvalidInput("invalid email or password")

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.ComparePassword(user.PasswordHash, req.Password) {
		return nil, invalid
	}

	roleIDs, err := s.store.RoleIDsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, roleIDs)
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}

	s.logger.Info("session created", zap.Int64("user_id", user.ID))
	return &LoginResponse{Token: token, ExpiresAt: expiresAt, UserID: user.ID}, nil
}

// ListUsers filters users by name substring and an exclusive dd/mm/yyyy
// birth date range
func (s *UserService) ListUsers(ctx context.Context, name, birthMin, birthMax string) ([]models.User, error) {
	filter := store.UserFilter{Name: strings.TrimSpace(name)}

	var err error
	if filter.BirthDateMin, err = optionalDate(birthMin, "birth_date_min"); err != nil {
		return nil, err
	}
	if filter.BirthDateMax, err = optionalDate(birthMax, "birth_date_max"); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx, filter)
}

func optionalDate(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(BirthDateLayout, raw)
	if err != nil {
		return nil, apperr.InvalidInput("%s must be a dd/mm/yyyy date", field)
	}
	return &t, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.Int64("user_id", id))
	return nil
}

// AssignRoles adds roles to a user. Tokens issued before keep their old
// role claim until they expire.
func (s *UserService) AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return apperr.InvalidInput("roles is required")
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return s.store.AssignRolesToUser(ctx, userID, dedupeIDs(roleIDs))
}

// EnsureOwner makes sure a user with email exists and holds the owner role
func (s *UserService) EnsureOwner(ctx context.Context, name, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	role, err := s.store.GetRoleByDescription(ctx, models.RoleOwner)
	if err != nil {
		return err
	}
	if role == nil {
		return apperr.NotFound("role %s is not seeded", models.RoleOwner)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user != nil {
		return s.store.AssignRolesToUser(ctx, user.ID, []int64{role.ID})
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return apperr.Internal("hash password", err)
	}
	user = &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		BirthDate:    time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.store.CreateUser(ctx, user, []int64{role.ID}); err != nil {
		return err
	}

	s.logger.Info("owner account created", zap.Int64("user_id", user.ID))
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
