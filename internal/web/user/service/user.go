// Package service implements accounts, sessions and profiles.
package service

import (
	"context"
	"strings"

	"github.com/Laisky/disaster-alert/internal/location"
	"github.com/Laisky/disaster-alert/internal/web/user/model"
	"github.com/Laisky/disaster-alert/library/db/mongo"
	"github.com/Laisky/disaster-alert/library/jwt"
	"github.com/Laisky/disaster-alert/library/log"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/jinzhu/copier"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidGender       = errors.New("invalid gender")
	ErrSelfDemotion        = errors.New("cannot remove own admin role")
	ErrMissingRegistration = errors.New("username, email and password are required")
)

// Store persists users.
type Store interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Insert(ctx context.Context, user *model.User) error
	Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*model.User, error)
}

// Service handles users.
type Service struct {
	store  Store
	signer *jwt.Signer
	clock  clockwork.Clock
	cost   int
	logger logSDK.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the time source for created/updated stamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// New returns a Service.
func New(store Store, signer *jwt.Signer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		signer: signer,
		clock:  clockwork.NewRealClock(),
		cost:   bcrypt.DefaultCost,
		logger: log.Logger.Named("user_service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RegisterInput is a sign-up request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Session is a signed token and the user it belongs to.
type Session struct {
	Token string          `json:"token"`
	User  *model.AuthUser `json:"user"`
}

// Register creates an account with role user and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Password == "" {
		return nil, ErrMissingRegistration
	}

	if err := s.ensureFree(ctx, email, username); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	now := s.clock.Now().UTC()
	user := &model.User{
		Username:  username,
		Email:     email,
		Password:  string(hashed),
		Role:        model.RoleUser,
		Gender:      model.DefaultGender,
		Avatar:      model.DefaultAvatar,
		LocationKey: ProfileLocationKey(""),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.store.Insert(ctx, user); err != nil {
		if mongo.DuplicateKey(err) {
			return nil, ErrEmailTaken
		}
		return nil, errors.Wrap(err, "create user")
	}

	s.logger.Info("user registered", zap.String("user", user.ID.Hex()))
	return s.session(user)
}

func (s *Service) ensureFree(ctx context.Context, email, username string) error {
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !mongo.NotFound(err) {
		return errors.Wrap(err, "check email")
	}

	return s.ensureUsernameFree(ctx, username)
}

func (s *Service) ensureUsernameFree(ctx context.Context, username string) error {
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !mongo.NotFound(err) {
		return errors.Wrap(err, "check username")
	}

	return nil
}

// Login checks credentials and returns a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if mongo.NotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "load user")
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.session(user)
}

func (s *Service) session(user *model.User) (*Session, error) {
	token, err := s.signer.Sign(user.ID.Hex())
	if err != nil {
		return nil, errors.Wrap(err, "sign session")
	}

	return &Session{
		Token: token,
		User: &model.AuthUser{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     user.EffectiveRole(),
		},
	}, nil
}

// Authenticate resolves a bearer token to the current user document.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}

	return s.Load(ctx, claims.UserID())
}

// Load returns the user with hex id.
func (s *Service) Load(ctx context.Context, id string) (*model.User, error) {
	oid, err := mongo.ParseID(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	user, err := s.store.FindByID(ctx, oid)
	if err != nil {
		if mongo.NotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "load user")
	}

	return user, nil
}

// ToProfile strips credentials from user.
func ToProfile(user *model.User) (*model.Profile, error) {
	profile := new(model.Profile)
	if err := copier.Copy(profile, user); err != nil {
		return nil, errors.Wrap(err, "copy profile")
	}
	profile.Role = user.EffectiveRole()

	return profile, nil
}

// ProfileUpdate holds the self-editable fields. Nil fields are unchanged.
type ProfileUpdate struct {
	Username *string
	Phone    *string
	Gender   *string
	Location *string
}

// UpdateProfile applies in to user.
func (s *Service) UpdateProfile(ctx context.Context, user *model.User, in ProfileUpdate) (*model.Profile, error) {
	set := bson.M{}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username != "" && username != user.Username {
			if err := s.ensureUsernameFree(ctx, username); err != nil {
				return nil, err
			}
			set["username"] = username
		}
	}
	if in.Phone != nil {
		set["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Gender != nil {
		if !model.ValidGender(*in.Gender) {
			return nil, ErrInvalidGender
		}
		set["gender"] = *in.Gender
	}
	if in.Location != nil {
		raw := strings.TrimSpace(*in.Location)
		set["location"] = raw
		set["locationKey"] = ProfileLocationKey(raw)
	}
	set["updatedAt"] = s.clock.Now().UTC()

	updated, err := s.store.Update(ctx, user.ID, set)
	if err != nil {
		if mongo.NotFound(err) {
			return nil, ErrUserNotFound
		}
		if mongo.DuplicateKey(err) {
			return nil, ErrUsernameTaken
		}
		return nil, errors.Wrap(err, "update profile")
	}

	return ToProfile(updated)
}

// ProfileLocationKey is the locationKey stored for a profile location.
// A profile without a usable location gets no key, so it never matches
// alerts filed under location.UnknownKey.
func ProfileLocationKey(raw string) string {
	key := location.Normalize(raw).Key
	if key == location.UnknownKey {
		return ""
	}

	return key
}

// SetRole changes the role of user targetID on behalf of actor.
func (s *Service) SetRole(ctx context.Context, actor *model.User, targetID, role string) (*model.AuthUser, error) {
	if !model.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	target, err := s.Load(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID && role != model.RoleAdmin {
		return nil, ErrSelfDemotion
	}

	updated, err := s.store.Update(ctx, target.ID, bson.M{
		"role":      role,
		"updatedAt": s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "update role")
	}

	s.logger.Info("user role changed",
		zap.String("actor", actor.ID.Hex()),
		zap.String("user", updated.ID.Hex()),
		zap.String("role", role))

	return &model.AuthUser{
		ID:       updated.ID,
		Username: updated.Username,
		Email:    updated.Email,
		Role:     updated.EffectiveRole(),
	}, nil
}
