package database

import (
	"context"
	"errors"
	"time"

	"chat-server/internal/models"
)

// ErrNotFound marks lookups for rows that do not exist. Callers branch on it
// with errors.Is.
var ErrNotFound = errors.New("not found")

type UserRepository interface {
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type RoomRepository interface {
	CreateRoom(ctx context.Context, req *models.CreateRoomRequest, createdBy string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
	FindRoomByID(ctx context.Context, id string) (*models.Room, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	QueryRoomMessages(ctx context.Context, roomID string, limit int, before time.Time) ([]*models.Message, error)
}

type Database interface {
	UserRepository
	RoomRepository
	MessageRepository
	Close() error
}
