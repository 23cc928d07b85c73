/*
auth.go - Caller identity and route authorization

IDENTITY:
  Every /api request carries an Identity:
    Subject   customer id, staff id or admin id
    Role      customer | staff | admin
    TenantID  tenant a staff member works for

  With a JWT secret configured, identity comes from an HMAC-signed bearer
  token (claims: sub, role, tenant_id, optional iss/exp). Without one, the
  server sits behind a gateway that already authenticated the caller and
  forwards X-Customer-ID, X-Role and X-Tenant-ID headers.

RULES:
  - Customers only touch their own ledger and vouchers
  - Staff scan codes only for their own tenant
  - Admin routes need the admin role
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func (r Role) valid() bool {
	return r == RoleCustomer || r == RoleStaff || r == RoleAdmin
}

// Identity is the authenticated caller.
type Identity struct {
	Subject  string
	Role     Role
	TenantID string
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller attached by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Header names trusted when no JWT secret is configured.
const (
	HeaderCustomerID = "X-Customer-ID"
	HeaderRole       = "X-Role"
	HeaderTenantID   = "X-Tenant-ID"
)

// Authenticator resolves the caller of each request.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewAuthenticator creates an authenticator. An empty secret switches to
// trusted gateway headers.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: issuer,
		leeway: 2 * time.Minute,
	}
}

// Claims is the bearer token payload.
type Claims struct {
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Middleware attaches the caller identity or answers 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthenticated", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func (a *Authenticator) identify(r *http.Request) (Identity, error) {
	if len(a.secret) == 0 {
		return identityFromHeaders(r)
	}
	token := extractBearer(r.Header.Get("Authorization"))
	if token == "" {
		return Identity{}, errors.New("missing bearer token")
	}
	return a.parseToken(token)
}

func identityFromHeaders(r *http.Request) (Identity, error) {
	id := Identity{
		Subject:  strings.TrimSpace(r.Header.Get(HeaderCustomerID)),
		Role:     Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))),
		TenantID: strings.TrimSpace(r.Header.Get(HeaderTenantID)),
	}
	if id.Role == "" && id.Subject != "" {
		id.Role = RoleCustomer
	}
	return id, id.check()
}

func (a *Authenticator) parseToken(raw string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.leeway),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	id := Identity{
		Subject:  claims.Subject,
		Role:     Role(strings.ToLower(claims.Role)),
		TenantID: claims.TenantID,
	}
	return id, id.check()
}

// SignToken issues a bearer token for id. Used by tooling and tests.
func (a *Authenticator) SignToken(id Identity, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := Claims{
		Role:     string(id.Role),
		TenantID: id.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (id Identity) check() error {
	switch {
	case id.Subject == "":
		return errors.New("missing subject")
	case !id.Role.valid():
		return fmt.Errorf("unknown role %q", id.Role)
	case id.Role == RoleStaff && id.TenantID == "":
		return errors.New("staff identity without tenant")
	}
	return nil
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

// RequireRole lets only the listed roles through.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthenticated", nil)
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Forbidden", fmt.Errorf("role %s not allowed", id.Role))
		})
	}
}

// canActFor reports whether the caller may access a customer's resources.
func canActFor(id Identity, customerID string) bool {
	return id.Role == RoleAdmin || (id.Role == RoleCustomer && id.Subject == customerID)
}

// canScanFor reports whether the caller may redeem codes at a tenant.
func canScanFor(id Identity, tenantID string) bool {
	return id.Role == RoleAdmin || (id.Role == RoleStaff && id.TenantID == tenantID)
}
