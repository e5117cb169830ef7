package tokeninfo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned when the token is not a JWT.
var ErrOpaqueToken = errors.New("tokeninfo: token is not a JWT")

// Claims are the fields of an access token that matter when debugging
// credential problems.
type Claims struct {
	Audience  []string
	Tenant    string
	AppID     string
	Issuer    string
	Subject   string
	Scopes    []string
	Roles     []string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Inspect parses token without verifying its signature.
func Inspect(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrOpaqueToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}

	info := &Claims{
		Tenant:  stringClaim(claims, "tid"),
		AppID:   stringClaim(claims, "appid"),
		Issuer:  stringClaim(claims, "iss"),
		Subject: stringClaim(claims, "sub"),
		Scopes:  strings.Fields(stringClaim(claims, "scp")),
		Roles:   listClaim(claims, "roles"),
	}
	if info.AppID == "" {
		info.AppID = stringClaim(claims, "azp")
	}

	if aud, err := claims.GetAudience(); err == nil {
		info.Audience = aud
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}

	return info, nil
}

// Permissions returns scopes and roles combined, sorted.
func (c *Claims) Permissions() []string {
	out := make([]string, 0, len(c.Scopes)+len(c.Roles))
	out = append(out, c.Scopes...)
	out = append(out, c.Roles...)
	sort.Strings(out)
	return out
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

func listClaim(claims jwt.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
