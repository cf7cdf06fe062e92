package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrAuthentication is the root of every credential failure. Callers refuse
// the connection when errors.Is(err, ErrAuthentication).
var ErrAuthentication = errors.New("authentication failed")

var (
	// ErrMissingToken is returned when the handshake carries no credential.
	ErrMissingToken = fmt.Errorf("%w: missing token", ErrAuthentication)
	// ErrMalformedHeader is returned for an Authorization header that is not "Bearer <token>".
	ErrMalformedHeader = fmt.Errorf("%w: invalid authorization header format", ErrAuthentication)
	// ErrInvalidToken is returned when the token signature or claims do not check out.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrAuthentication)
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrAuthentication)
	// ErrUnknownRole is returned when the token carries a role we do not serve.
	ErrUnknownRole = fmt.Errorf("%w: unknown role", ErrAuthentication)
)

// Role is the platform role attached to an identity.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanManageGroups reports whether the role may change group membership.
func (r Role) CanManageGroups() bool {
	return r == RoleInstructor || r == RoleAdmin
}

// Identity is the authenticated user behind a connection or request.
type Identity struct {
	UserID   int64
	Username string
	Role     Role
}

// Resolver turns an opaque credential into an identity.
type Resolver interface {
	Resolve(token string) (*Identity, error)
}

// JWTResolver resolves HS256 tokens issued with the shared secret.
type JWTResolver struct {
	cfg *JWTConfig
}

// NewJWTResolver creates a resolver backed by JWT validation.
func NewJWTResolver(cfg *JWTConfig) *JWTResolver {
	return &JWTResolver{cfg: cfg}
}

// Resolve validates the token and returns the identity it carries.
func (r *JWTResolver) Resolve(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := ValidateToken(r.cfg, token)
	if err != nil {
		return nil, err
	}
	username := claims.Username
	if username == "" {
		username = fmt.Sprintf("user-%d", claims.UserID)
	}
	return &Identity{UserID: claims.UserID, Username: username, Role: claims.Role}, nil
}

// Issue mints a token for id using the resolver's configuration.
func (r *JWTResolver) Issue(id Identity) (string, error) {
	return GenerateToken(r.cfg, id)
}

// TokenFromRequest extracts the bearer token from handshake metadata.
// The query parameter is only consulted when allowQuery is set.
func TokenFromRequest(req *http.Request, allowQuery bool) (string, error) {
	if header := req.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", ErrMalformedHeader
		}
		return strings.TrimSpace(parts[1]), nil
	}

	if allowQuery {
		if token := req.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
	}

	return "", ErrMissingToken
}
