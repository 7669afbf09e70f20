package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/zenazn/goji/web"

	"github.com/janelia-flyem/reseg/dvid"
)

// authConfig holds the secret used to sign tokens and the file of authorized users.
type authConfig struct {
	AuthFile  string `toml:"auth_file"`
	SecretKey string `toml:"secret_key"`
}

// Enabled returns true if requests must carry a JWT.
func (c authConfig) Enabled() bool {
	return c.SecretKey != ""
}

// GenerateJWT returns a JWT for a user signed with the configured secret key.
func GenerateJWT(c *Config, user string) (string, error) {
	if !c.Auth.Enabled() {
		return "", fmt.Errorf("no secret_key in [auth] configuration: %w", dvid.ErrInvalidArgument)
	}
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["user"] = user

	tokenString, err := token.SignedString([]byte(c.Auth.SecretKey))
	if err != nil {
		return "", fmt.Errorf("error with JWT signing: %v", err)
	}
	return tokenString, nil
}

// isAuthorized is middleware that validates a JWT and sets the c.Env["user"] field
// to the authenticated user.
func (s *Server) isAuthorized(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		reqToken := r.Header.Get("Authorization")
		if len(reqToken) == 0 {
			unauthorized(w, r, "JWT required via Authorization in request header")
			return
		}
		splitToken := strings.Split(reqToken, "Bearer")
		if len(splitToken) != 2 {
			unauthorized(w, r, "bearer not in proper format")
			return
		}
		reqToken = strings.TrimSpace(splitToken[1])
		if len(reqToken) == 0 {
			unauthorized(w, r, "requests require JWT authentication")
			return
		}
		token, err := jwt.Parse(reqToken, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("error signing method: %v", token.Header["alg"])
			}
			return []byte(s.config.Auth.SecretKey), nil
		})
		if err != nil {
			unauthorized(w, r, "error parsing JWT: %v", err)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			unauthorized(w, r, "failed authorization")
			return
		}
		user, ok := claims["user"].(string)
		if !ok {
			unauthorized(w, r, "user %v is not a simple string", claims["user"])
			return
		}
		if c.Env == nil {
			c.Env = make(map[interface{}]interface{})
		}
		c.Env["user"] = user
		if !s.userIsAuthorized(user, r.Method) {
			unauthorized(w, r, "user %q is not authorized", user)
			return
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// loadAuthFile reads a JSON map of user to privilege: "read", "write" or "readwrite".
// The user "*" matches anyone not listed.
func loadAuthFile(filename string) (map[string]string, error) {
	if len(filename) == 0 {
		dvid.Infof("No authorization file found.  Any valid token is authorized.\n")
		return nil, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var users map[string]string
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("bad authorization file %s: %v", filename, err)
	}
	return users, nil
}

// userIsAuthorized returns true if the user may make a request with the given method.
// Without an authorization file every user with a valid token is authorized.
func (s *Server) userIsAuthorized(user string, httpMethod string) bool {
	if s.authorizedUsers == nil {
		return true
	}
	method := strings.ToLower(httpMethod)
	readReq := method == "get" || method == "head"
	priv, found := s.authorizedUsers[user]
	if !found {
		priv, found = s.authorizedUsers["*"]
		if !found {
			return false
		}
	}
	switch priv {
	case "readwrite":
		return true
	case "read":
		return readReq
	case "write":
		return !readReq
	default:
		dvid.Errorf("Authorized user %q has unparsable privilege %q\n", user, priv)
		return false
	}
}
