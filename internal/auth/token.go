package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segyhp/loan-platform/internal/domain"

	customError "github.com/segyhp/loan-platform/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// SubjectID accepts the caller id as a JSON string or number.
type SubjectID string

func (id *SubjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SubjectID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = SubjectID(n.String())
	return nil
}

// Claims is the payload issued by the users service.
type Claims struct {
	ID    SubjectID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"rol"`
	jwt.RegisteredClaims
}

// issuedTokenTTL bounds credentials minted by Issue.
const issuedTokenTTL = time.Hour

// TokenManager verifies HS256 caller credentials issued by the users service.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue signs a credential for caller that expires after an hour. The
// platform never mints credentials itself; Issue exists for tests and
// local tooling that need a token the server will accept.
func (m *TokenManager) Issue(caller domain.Caller) (string, error) {
	now := m.now()
	claims := Claims{
		ID:    SubjectID(caller.ID),
		Email: caller.Email,
		Role:  string(caller.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(issuedTokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks signature and expiry and returns the caller the token names.
func (m *TokenManager) Verify(raw string) (domain.Caller, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Caller{}, customError.WrapUnauthenticated("missing credential")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Caller{}, customError.WrapUnauthenticated("credential expired")
		}
		return domain.Caller{}, customError.WrapUnauthenticated("invalid credential")
	}

	if claims.ID == "" {
		return domain.Caller{}, customError.WrapUnauthenticated("credential has no subject")
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return domain.Caller{}, customError.WrapUnauthenticated("credential has an unknown role")
	}

	return domain.Caller{
		ID:         string(claims.ID),
		Email:      claims.Email,
		Role:       role,
		Credential: raw,
	}, nil
}
