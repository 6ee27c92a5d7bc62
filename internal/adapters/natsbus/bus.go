// Package natsbus mirrors room events to NATS and carries the gamification
// hook to whoever awards badges.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Conn is the part of *nats.Conn the bus needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type Bus struct {
	nc     Conn
	prefix string
}

// Connect dials NATS with endless reconnects.
func Connect(url, prefix string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("yogasync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "natsbus").Msg("disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("module", "natsbus").Str("url", c.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return New(nc, prefix), nil
}

func New(nc Conn, prefix string) *Bus {
	return &Bus{nc: nc, prefix: prefix}
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// RoomSubject is <prefix>.room.<roomId>.<kind>.
func (b *Bus) RoomSubject(room domain.RoomID, kind domain.EventKind) string {
	return fmt.Sprintf("%s.room.%s.%s", b.prefix, tokenReplacer.Replace(string(room)), kind)
}

// MilestoneSubject is <prefix>.gamification.<kind>.
func (b *Bus) MilestoneSubject(kind core.MilestoneKind) string {
	return fmt.Sprintf("%s.gamification.%s", b.prefix, kind)
}

type roomEvent struct {
	Topic   string        `json:"topic"`
	From    domain.ConnID `json:"from,omitempty"`
	Payload any           `json:"payload,omitempty"`
}

func (b *Bus) PublishRoom(msg core.Message) error {
	data, err := json.Marshal(roomEvent{Topic: msg.Topic.String(), From: msg.From, Payload: msg.Payload})
	if err != nil {
		return fmt.Errorf("encode room event: %w", err)
	}
	return b.nc.Publish(b.RoomSubject(msg.Topic.Room, msg.Topic.Kind), data)
}

// Notify implements core.Notifier. Delivery is fire-and-forget.
func (b *Bus) Notify(ctx context.Context, m core.Milestone) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode milestone: %w", err)
	}
	if err := b.nc.Publish(b.MilestoneSubject(m.Kind), data); err != nil {
		return fmt.Errorf("publish milestone %s: %w", m.Kind, err)
	}
	return nil
}

func (b *Bus) Close() error {
	return b.nc.Drain()
}

// Mirror is a core.Publisher that delivers through Primary and copies every
// room broadcast to the bus. Bus failures are logged only.
type Mirror struct {
	Primary core.Publisher
	Bus     *Bus
}

func (m *Mirror) Publish(msg core.Message) error {
	err := m.Primary.Publish(msg)
	if berr := m.Bus.PublishRoom(msg); berr != nil {
		log.Error().Err(berr).Str("module", "natsbus").Str("room", string(msg.Topic.Room)).Msg("mirror publish failed")
	}
	return err
}

func (m *Mirror) SendTo(conn domain.ConnID, kind domain.EventKind, payload any) error {
	return m.Primary.SendTo(conn, kind, payload)
}
