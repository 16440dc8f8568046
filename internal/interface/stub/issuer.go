package stub

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// claims 定義 access token 的 payload。
type claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type refreshSession struct {
	userID     string
	expiresAt  time.Time
	rememberMe bool
}

// issuer 簽發/驗證 access token，並在記憶體中輪替 refresh token。
type issuer struct {
	secret    []byte
	accessTTL time.Duration

	mu       sync.Mutex
	sessions map[string]refreshSession

	now func() time.Time
}

func newIssuer(secret string, accessTTL time.Duration) *issuer {
	return &issuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		sessions:  make(map[string]refreshSession),
		now:       time.Now,
	}
}

// issueAccess 產生 HS256 access token。
func (i *issuer) issueAccess(userID, role string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.accessTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// parseAccess 驗證並解析 access token。
func (i *issuer) parseAccess(token string) (claims, error) {
	var c claims
	tkn, err := jwt.ParseWithClaims(token, &c, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return claims{}, err
	}
	if !tkn.Valid {
		return claims{}, errors.New("invalid token")
	}
	return c, nil
}

// newRefresh 產生 refresh token 並登記 session。
func (i *issuer) newRefresh(userID string, rememberMe bool, ttl time.Duration) (string, time.Time) {
	token := uuid.NewString()
	exp := i.now().Add(ttl)
	i.mu.Lock()
	i.sessions[token] = refreshSession{userID: userID, expiresAt: exp, rememberMe: rememberMe}
	i.mu.Unlock()
	return token, exp
}

// takeRefresh 驗證 refresh token 並立刻撤銷（一次性輪替）。
func (i *issuer) takeRefresh(token string) (refreshSession, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	sess, ok := i.sessions[token]
	if !ok {
		return refreshSession{}, false
	}
	delete(i.sessions, token)
	if i.now().After(sess.expiresAt) {
		return refreshSession{}, false
	}
	return sess, true
}

// revoke 撤銷 refresh token；token 不存在時也安全。
func (i *issuer) revoke(token string) {
	i.mu.Lock()
	delete(i.sessions, token)
	i.mu.Unlock()
}
