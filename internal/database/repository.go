package database

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Store is the set of queries and mutations available both on the
// repository and inside a transaction.
type Store interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserById(ctx context.Context, userId int) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUsersByIds(ctx context.Context, userIds []int) ([]User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]User, error)

	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoom(ctx context.Context, roomId int) (Room, error)
	ListRoomsForUser(ctx context.Context, userId int) ([]RoomListing, error)
	GetRoomListing(ctx context.Context, userId, roomId int) (RoomListing, error)
	// ListOpenSupportRooms returns support rooms nobody has joined yet,
	// oldest first. A non-nil regionId keeps rooms of that region and
	// rooms without one.
	ListOpenSupportRooms(ctx context.Context, regionId *int, limit int) ([]Room, error)

	AddMember(ctx context.Context, params AddMemberParams) (Membership, error)
	GetMembership(ctx context.Context, userId, roomId int) (Membership, error)
	RemoveMember(ctx context.Context, userId, roomId int) error
	ListMembers(ctx context.Context, roomId int) ([]Member, error)
	ListMemberIds(ctx context.Context, roomId int) ([]int, error)
	UpdateLastRead(ctx context.Context, userId, roomId, messageId int, seenAt time.Time) error

	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	// GetMessage returns the message including soft-deleted ones.
	GetMessage(ctx context.Context, messageId int) (Message, error)
	// LockMessage is GetMessage holding a row lock until the transaction ends.
	LockMessage(ctx context.Context, messageId int) (Message, error)
	UpdateMessageContent(ctx context.Context, messageId int, content string, editedAt time.Time) (Message, error)
	SoftDeleteMessage(ctx context.Context, messageId int, placeholder string) (Message, error)
	// ListMessages returns non-deleted messages of a room, most recent first.
	ListMessages(ctx context.Context, roomId, limit, offset int) ([]Message, error)

	GetUserReaction(ctx context.Context, messageId, userId int) (Reaction, error)
	CreateReaction(ctx context.Context, params CreateReactionParams) (Reaction, error)
	DeleteReaction(ctx context.Context, reactionId int) error
	ListReactions(ctx context.Context, messageIds []int) ([]Reaction, error)
}

// GoChatRepository is the durable store. RunInTx runs fn inside one
// transaction: either every write made through the Store passed to fn is
// committed, or none is.
type GoChatRepository interface {
	Store
	Ping(ctx context.Context) error
	RunInTx(ctx context.Context, fn func(tx Store) error) error
	Close() error
}
