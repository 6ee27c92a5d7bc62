package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Room is the durable room row. Only the columns this service touches are
// mapped; the rest of the record belongs to the CRUD service.
type Room struct {
	ID               string `gorm:"primaryKey;size:64"`
	ParticipantCount int    `gorm:"not null;default:0"`
	State            int    `gorm:"not null;default:0"`
	UpdatedAt        time.Time
}

func (Room) TableName() string { return "rooms" }

type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the rooms table.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&Room{}); err != nil {
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}
	log.Info().Str("module", "store.postgres").Msg("database connection established")
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetRoomParticipantCount(ctx context.Context, id domain.RoomID) (int, error) {
	var room Room
	err := s.db.WithContext(ctx).Select("id", "participant_count").First(&room, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, domain.ErrRoomNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get room %s: %w", id, err)
	}
	return room.ParticipantCount, nil
}

func (s *PostgresStore) SetRoomParticipantCount(ctx context.Context, id domain.RoomID, n int) error {
	return s.update(ctx, id, "participant_count", n)
}

func (s *PostgresStore) SetRoomState(ctx context.Context, id domain.RoomID, state domain.RoomState) error {
	return s.update(ctx, id, "state", int(state))
}

func (s *PostgresStore) update(ctx context.Context, id domain.RoomID, column string, value int) error {
	res := s.db.WithContext(ctx).Model(&Room{}).Where("id = ?", string(id)).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update %s of room %s: %w", column, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s: %w", id, domain.ErrRoomNotFound)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
