package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ernie/teamswitch/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Claims represents the JWT claims for an authenticated admin
type Claims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Service handles authentication operations against the configured admins
type Service struct {
	jwtSecret     []byte
	tokenDuration time.Duration
	admins        map[string]string
	now           func() time.Time
}

// NewService creates a new auth service
func NewService(cfg config.AuthConfig) *Service {
	tokenDuration := cfg.TokenDuration
	if tokenDuration == 0 {
		tokenDuration = 24 * time.Hour
	}
	admins := make(map[string]string, len(cfg.Admins))
	for _, a := range cfg.Admins {
		admins[a.Username] = a.PasswordHash
	}
	return &Service{
		jwtSecret:     []byte(cfg.JWTSecret),
		tokenDuration: tokenDuration,
		admins:        admins,
		now:           time.Now,
	}
}

// HashPassword creates a bcrypt hash of a password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword compares a password against a hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Login checks credentials and returns a signed token
func (s *Service) Login(username, password string) (string, error) {
	hash, ok := s.admins[username]
	if !ok || !CheckPassword(password, hash) {
		return "", ErrInvalidCredentials
	}
	return s.GenerateToken(username)
}

// GenerateToken creates a JWT for an admin
func (s *Service) GenerateToken(username string) (string, error) {
	now := s.now()
	claims := Claims{
		Username: username,
		IsAdmin:  true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT and returns the claims. Tokens for admins
// removed from the config since they were issued are rejected.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if _, ok := s.admins[claims.Username]; !ok {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
