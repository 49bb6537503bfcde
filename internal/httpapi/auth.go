package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"bodega/backend/internal/domain"
)

const tokenSubject = "counter"

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager trades the shop's shared access password for a short-lived
// bearer token. Only the bcrypt hash of the password is kept in memory.
type AuthManager struct {
	secret       []byte
	tokenTTL     time.Duration
	passwordHash []byte
	now          func() time.Time
}

type accessClaims struct {
	jwtlib.RegisteredClaims
}

func NewAuthManager(secret string, tokenTTL time.Duration, accessPassword string) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
	// An empty or unhashable password leaves passwordHash nil, which rejects
	// every login.
	if password := strings.TrimSpace(accessPassword); password != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost); err == nil {
			manager.passwordHash = hash
		}
	}
	return manager
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	input := strings.TrimSpace(req.Password)
	if input == "" || a.passwordHash == nil {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(a.passwordHash, []byte(input)) != nil {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(tokenSubject, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("bodega"))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Subject: sub}, nil
}

func (a *AuthManager) sign(subject string, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "bodega",
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
