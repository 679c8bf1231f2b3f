package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleOperator is the role carried by console operator tokens.
const RoleOperator = "operator"

// Token kinds.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	ErrInvalidCredentials = errors.New("invalid operator credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrWrongTokenKind     = errors.New("wrong token kind")
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims represents JWT payload.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	Kind    string `json:"kind"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies operator tokens.
type Issuer struct {
	Name       string
	Key        string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

func (is Issuer) now() time.Time {
	if is.Now != nil {
		return is.Now()
	}
	return time.Now()
}

// Login checks an operator's shared key and issues a token pair.
func (is Issuer) Login(operatorID, key, expectedKey string) (TokenPair, error) {
	if operatorID == "" || expectedKey == "" ||
		subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
		return TokenPair{}, ErrInvalidCredentials
	}
	return is.Issue(operatorID, RoleOperator)
}

// Issue issues signed access and refresh tokens.
func (is Issuer) Issue(subject, role string) (TokenPair, error) {
	now := is.now()
	accessExp := now.Add(is.AccessTTL)
	refreshExp := now.Add(is.RefreshTTL)

	accessToken, err := is.sign(subject, role, KindAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := is.sign(subject, role, KindRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Refresh trades a valid refresh token for a new pair.
func (is Issuer) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := is.Parse(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return is.Issue(claims.Subject, claims.Role)
}

func (is Issuer) sign(subject, role, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		Subject: subject,
		Role:    role,
		Kind:    kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    is.Name,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(is.Key))
}

// Parse validates a token of the given kind and returns claims.
func (is Issuer) Parse(tokenStr, kind string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(is.Key), nil
	}, jwt.WithTimeFunc(is.now))
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if is.Name != "" && claims.Issuer != is.Name {
		return Claims{}, errors.Join(ErrInvalidToken, errors.New("issuer mismatch"))
	}
	if claims.Kind != kind {
		return Claims{}, ErrWrongTokenKind
	}
	return *claims, nil
}
