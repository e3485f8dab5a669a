package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/crossmindhq/crossmind-backend/internal/platform/apierr"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

type authClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair is what Login and Refresh hand back to the HTTP layer.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthService interface {
	Register(dbc dbctx.Context, email, password, name string) (*types.User, error)
	Login(dbc dbctx.Context, email, password string) (*types.User, *TokenPair, error)
	Refresh(dbc dbctx.Context, refreshToken string) (*TokenPair, error)

	// ParseAccessToken validates a bearer token and returns the user id
	// it was issued for.
	ParseAccessToken(tokenString string) (uuid.UUID, error)
}

type authService struct {
	log        *logger.Logger
	users      repos.UserRepo
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(baseLog *logger.Logger, userRepo repos.UserRepo, secret string, accessTTL, refreshTTL time.Duration) AuthService {
	return &authService{
		log:        baseLog.With("service", "AuthService"),
		users:      userRepo,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *authService) Register(dbc dbctx.Context, email, password, name string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apierr.BadRequest(fmt.Errorf("a valid email is required"))
	}
	if len(password) < 8 {
		return nil, apierr.BadRequest(fmt.Errorf("password must be at least 8 characters"))
	}

	if _, err := s.users.GetByEmail(dbc, email); err == nil {
		return nil, apierr.Conflict(fmt.Errorf("email already registered"))
	} else if err != repos.ErrNotFound {
		return nil, apierr.Internal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("hash password: %w", err))
	}

	user, err := s.users.Create(dbc, &types.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(name),
	})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("create user: %w", err))
	}
	s.log.Info("user registered", "user_id", user.ID)
	return user, nil
}

func (s *authService) Login(dbc dbctx.Context, email, password string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(dbc, email)
	if err == repos.ErrNotFound {
		return nil, nil, apierr.Unauthorized(fmt.Errorf("invalid credentials"))
	}
	if err != nil {
		return nil, nil, apierr.Internal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, apierr.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	pair, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, nil, apierr.Internal(err)
	}
	return user, pair, nil
}

func (s *authService) Refresh(dbc dbctx.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.parseToken(refreshToken, tokenKindRefresh)
	if err != nil {
		return nil, apierr.Unauthorized(fmt.Errorf("invalid refresh token: %w", err))
	}
	// The user must still exist; a deleted account cannot mint tokens.
	if _, err := s.users.GetByID(dbc, userID); err != nil {
		return nil, apierr.Unauthorized(fmt.Errorf("invalid refresh token"))
	}
	pair, err := s.issueTokens(userID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return pair, nil
}

func (s *authService) ParseAccessToken(tokenString string) (uuid.UUID, error) {
	userID, err := s.parseToken(tokenString, tokenKindAccess)
	if err != nil {
		return uuid.Nil, apierr.Unauthorized(fmt.Errorf("invalid access token: %w", err))
	}
	return userID, nil
}

func (s *authService) issueTokens(userID uuid.UUID) (*TokenPair, error) {
	access, err := s.signToken(userID, tokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signToken(userID, tokenKindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *authService) signToken(userID uuid.UUID, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := authClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *authService) parseToken(tokenString, wantKind string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	claims, ok := parsed.Claims.(*authClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}
	if claims.Kind != wantKind {
		return uuid.Nil, fmt.Errorf("wrong token kind %q", claims.Kind)
	}
	return uuid.Parse(claims.Subject)
}
