package signal

import (
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/gin-gonic/gin"
)

// IdentityKey is where the HTTP layer stores the verified identity.
const IdentityKey = "identity"

func SetIdentity(c *gin.Context, id domain.Identity) {
	c.Set(IdentityKey, id)
}

func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}
