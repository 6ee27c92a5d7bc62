package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/yogasync/internal/app/orch"
	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

// pongWait is how long a silent peer is tolerated.
func (o Options) pongWait() time.Duration {
	return o.PingPeriod * 10 / 9
}

type SignalWSController struct {
	Coord   *orch.Coordinator
	Relay   *orch.Relay
	Hub     *Hub
	Limiter *RoomRateLimiter
	Opts    Options
	// EvictDuplicates closes a user's older connections when a new one opens.
	EvictDuplicates bool
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu       sync.RWMutex
	closed   bool
	wsClosed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSendLocked()
	if !c.wsClosed {
		c.wsClosed = true
		_ = c.conn.Close()
	}
}

// CloseAfterFlush stops accepting frames but lets the write pump deliver
// what is queued before it closes the socket.
func (c *WsSignalConn) CloseAfterFlush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSendLocked()
}

func (c *WsSignalConn) closeSendLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request. The identity must already be on the
// gin context.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id, ok := IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	opts := ctl.Opts.withDefaults()
	sid := domain.ConnID(uuid.NewString())
	conn := newWsSignalConn(ws, opts.SendBuffer)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("user", string(id.UserID)).Msg("new WS connection")

	if ctl.EvictDuplicates {
		ctl.evictDuplicates(sid, id.UserID)
	}
	ctl.Hub.Register(sid, conn)
	if err := ctl.Coord.Handle(ctx, orch.Event{Type: orch.EventConnect, ConnID: sid, Identity: id}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("connect rejected")
		ctl.Hub.Unregister(sid)
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, sid, conn, opts)
	go ctl.readPump(ctx, cancel, sid, conn, opts)
}
