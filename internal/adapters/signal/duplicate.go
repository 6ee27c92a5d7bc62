package signal

import (
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

type duplicatePayload struct {
	Message string `json:"message"`
}

// evictDuplicates closes every other connection of user. Their read pumps
// then run the usual disconnect, so room state is cleaned up the same way.
func (ctl *SignalWSController) evictDuplicates(sid domain.ConnID, user domain.UserID) {
	for _, old := range ctl.Coord.Sessions.ConnsOfUser(user) {
		if old == sid {
			continue
		}
		log.Info().Str("module", "signal").Str("sid", string(old)).Str("by", string(sid)).Str("user", string(user)).Msg("evicting duplicate connection")
		err := ctl.Hub.Evict(old, domain.EventDuplicateConnection, duplicatePayload{Message: "a newer connection replaced this one"})
		if err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("sid", string(old)).Msg("evict")
		}
	}
}
