// Copyright 2022 The iqreplay Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
	"sync"

	"iqreplay/pkg/log"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptHashCost bcrypt hash cost.
const DefaultBcryptHashCost = 10

// ValidateResponse ValidateRequest response.
type ValidateResponse struct {
	IsValid  bool
	Username string
}

// Authenticator blocks requests without valid basic auth credentials.
// Accounts map usernames to bcrypt hashes and are read only.
type Authenticator struct {
	accounts  map[string][]byte
	authCache map[string]ValidateResponse

	hashCost int

	log *log.Logger
	mu  sync.Mutex
}

// NewAuthenticator creates a basic authenticator. All
// requests are allowed if users is empty.
func NewAuthenticator(users map[string]string, logger *log.Logger) *Authenticator {
	accounts := make(map[string][]byte, len(users))
	for name, hash := range users {
		accounts[name] = []byte(hash)
	}
	return &Authenticator{
		accounts:  accounts,
		authCache: make(map[string]ValidateResponse),
		hashCost:  DefaultBcryptHashCost,
		log:       logger,
	}
}

// AuthDisabled if all requests should be allowed.
func (a *Authenticator) AuthDisabled() bool {
	return len(a.accounts) == 0
}

// ValidateRequest validates raw http requests.
func (a *Authenticator) ValidateRequest(r *http.Request) ValidateResponse {
	if a.AuthDisabled() {
		return ValidateResponse{IsValid: true}
	}

	req := r.Header.Get("Authorization")
	a.mu.Lock()
	if res, cacheExist := a.authCache[req]; cacheExist {
		a.mu.Unlock()
		return res
	}
	a.mu.Unlock()

	name, pass := parseBasicAuth(req)
	hash, found := a.accounts[name]

	res := ValidateResponse{}
	if !found {
		// Generate fake hash to prevent timing based attacks.
		bcrypt.GenerateFromPassword([]byte(name), a.hashCost) //nolint:errcheck
	} else if passwordsMatch(hash, pass) {
		res = ValidateResponse{IsValid: true, Username: name}
	}

	a.mu.Lock()
	a.authCache[req] = res
	a.mu.Unlock()
	return res
}

func parseBasicAuth(str string) (username, password string) {
	const prefix = "Basic "
	if len(str) < len(prefix) || !strings.EqualFold(str[:len(prefix)], prefix) {
		return
	}
	c, err := base64.StdEncoding.DecodeString(str[len(prefix):])
	if err != nil {
		return
	}
	cs := string(c)
	s := strings.IndexByte(cs, ':')
	if s < 0 {
		return
	}
	return cs[:s], cs[s+1:]
}

func passwordsMatch(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// HashPassword returns the bcrypt hash used in the users config.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), DefaultBcryptHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// User blocks unauthenticated requests.
func (a *Authenticator) User(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := a.ValidateRequest(r)
		if !res.IsValid {
			if r.Header.Get("Authorization") != "" {
				username, _ := parseBasicAuth(r.Header.Get("Authorization"))
				a.logFailedLogin(r, username)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="iqreplay"`)
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// logFailedLogin finds and logs the ip.
func (a *Authenticator) logFailedLogin(r *http.Request, username string) {
	ip := ""
	realIP := r.Header.Get("X-Real-Ip")
	if realIP != "" {
		ip += "real:" + realIP + " "
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" && forwarded != realIP {
		ip += "forwarded:" + forwarded + " "
	}
	remoteAddr := r.RemoteAddr
	if remoteAddr != "" && remoteAddr != forwarded {
		ip += "addr:" + remoteAddr
	}

	a.log.Info().Src("auth").Msgf("failed login: username: %v %v", username, ip)
}
