package services

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tokoadmin/internal/models"
	"tokoadmin/internal/repositories"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAuthToken   = errors.New("invalid token")
)

// AuthService handles business logic for authentication and authorization.
type AuthService struct {
	userRepo   repositories.UserRepository
	jwtSecret  []byte
	tokenDurat time.Duration // Duration for which JWT is valid
	log        *zap.SugaredLogger
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string, log *zap.SugaredLogger) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 24 * time.Hour,
		log:        log,
	}
}

// RegisterUser registers a new user with the plain user role.
func (s *AuthService) RegisterUser(user *models.User) error {
	if existingUser, err := s.userRepo.GetByUsername(user.Username); err == nil && existingUser != nil {
		return errors.Wrapf(ErrUserExists, "username '%s' already taken", user.Username)
	}
	if existingUser, err := s.userRepo.GetByEmail(user.Email); err == nil && existingUser != nil {
		return errors.Wrapf(ErrUserExists, "email '%s' already registered", user.Email)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	user.Password = string(hashedPassword)
	user.Role = models.RoleUser

	if err := s.userRepo.Create(user); err != nil {
		return errors.Wrap(err, "register user")
	}
	return nil
}

// EnsureAdmin creates the administrator account, or promotes and resets the
// password of an existing account with that username.
func (s *AuthService) EnsureAdmin(username, email, password string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	user, err := s.userRepo.GetByUsername(username)
	switch {
	case err == nil:
		user.Password = string(hashedPassword)
		user.Role = models.RoleAdmin
		if err := s.userRepo.Update(user); err != nil {
			return nil, errors.Wrap(err, "promote admin")
		}
	case errors.Is(err, repositories.ErrUserNotFound):
		user = &models.User{
			Username: username,
			Email:    email,
			Password: string(hashedPassword),
			Role:     models.RoleAdmin,
		}
		if err := s.userRepo.Create(user); err != nil {
			return nil, errors.Wrap(err, "create admin")
		}
	default:
		return nil, errors.Wrap(err, "look up admin")
	}
	s.log.Infow("admin account ready", "username", username, "user_id", user.ID)
	return user, nil
}

// LoginUser authenticates a user and returns a JWT token if successful.
func (s *AuthService) LoginUser(username, password string) (string, error) {
	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		// do not reveal whether the username exists
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	role := user.Role
	if !role.Valid() {
		role = models.RoleUser
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     string(role),
		"exp":      time.Now().Add(s.tokenDurat).Unix(),
		"iat":      time.Now().Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", errors.Wrap(err, "generate token")
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		s.log.Debugw("token validation failed", "error", err)
		return nil, errors.Wrap(ErrInvalidAuthToken, err.Error())
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidAuthToken
}

// ActorFromClaims builds the acting user from validated token claims.
// Unknown roles fall back to the plain user role.
func ActorFromClaims(claims jwt.MapClaims) Actor {
	id, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	actor := Actor{ID: id, Username: username, Role: models.Role(role)}
	if !actor.Role.Valid() {
		actor.Role = models.RoleUser
	}
	return actor
}
