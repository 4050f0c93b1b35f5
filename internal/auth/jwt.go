package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rental-backend/internal/config"
	"rental-backend/internal/models"
	"rental-backend/internal/timeutil"
)

// Claims carry the principal issued by the account service. Tokens are only
// validated here; issuing them is the account service's job.
type Claims struct {
	UserID   int64       `json:"user_id"`
	Role     models.Role `json:"role"`
	TenantID *int64      `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() models.Principal {
	return models.Principal{UserID: c.UserID, Role: c.Role, TenantID: c.TenantID}
}

type JWTManager struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

func NewJWTManager(cfg *config.Config) *JWTManager {
	return &JWTManager{
		secret:     []byte(cfg.JWT.Secret),
		issuer:     cfg.JWT.Issuer,
		expiration: time.Duration(cfg.JWT.ExpirationHours) * time.Hour,
	}
}

// GenerateToken signs a token for p. Used by tests and local tooling.
func (j *JWTManager) GenerateToken(p models.Principal) (string, error) {
	now := timeutil.Now()
	claims := &Claims{
		UserID:   p.UserID,
		Role:     p.Role,
		TenantID: p.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken verifies a JWT token and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	switch claims.Role {
	case models.RoleManager:
	case models.RoleTenant:
		if claims.TenantID == nil {
			return nil, errors.New("tenant token without tenant_id")
		}
	default:
		return nil, errors.New("unknown role")
	}
	return claims, nil
}
