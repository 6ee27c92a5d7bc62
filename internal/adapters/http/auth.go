package http

import (
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"

	"github.com/dkeye/yogasync/internal/adapters/signal"
	"github.com/dkeye/yogasync/internal/config"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	sessionUserID   = "uid"
	sessionNickname = "nickname"
	sessionProfile  = "profile"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is what the auth service puts in the token: the user id in sub,
// plus nickname and avatar.
type Claims struct {
	Nickname string `json:"nickname"`
	Profile  string `json:"profile,omitempty"`
	jwt.RegisteredClaims
}

func ParseToken(secret []byte, raw string) (domain.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return domain.NewIdentity(domain.UserID(sub), claims.Nickname, claims.Profile)
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	// browsers cannot set headers on a WebSocket upgrade
	return c.Query("token")
}

// IdentityMiddleware puts the caller's verified identity on the context. A
// token wins; otherwise the identity cached in the cookie session is reused,
// so a reconnecting browser does not need the token again.
func IdentityMiddleware(auth config.AuthConfig) gin.HandlerFunc {
	secret := []byte(auth.JWTSecret)
	return func(c *gin.Context) {
		sess := sessions.Default(c)

		if raw := bearerToken(c); raw != "" {
			id, err := ParseToken(secret, raw)
			if err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("token rejected")
				c.AbortWithStatusJSON(stdhttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			accept(c, sess, id)
			return
		}
		if id, ok := recall(sess); ok {
			signal.SetIdentity(c, id)
			c.Next()
			return
		}
		if auth.AllowAnonymous {
			accept(c, sess, domain.NewGuest())
			return
		}
		c.AbortWithStatusJSON(stdhttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func accept(c *gin.Context, sess sessions.Session, id domain.Identity) {
	sess.Set(sessionUserID, string(id.UserID))
	sess.Set(sessionNickname, id.Nickname)
	sess.Set(sessionProfile, id.Profile)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	signal.SetIdentity(c, id)
	c.Next()
}

func recall(sess sessions.Session) (domain.Identity, bool) {
	uid, _ := sess.Get(sessionUserID).(string)
	nick, _ := sess.Get(sessionNickname).(string)
	profile, _ := sess.Get(sessionProfile).(string)
	id, err := domain.NewIdentity(domain.UserID(uid), nick, profile)
	if err != nil {
		return domain.Identity{}, false
	}
	return id, true
}
