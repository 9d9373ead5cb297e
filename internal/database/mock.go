package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockGoChatRepository struct {
	mock.Mock
}

func (m *MockGoChatRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetUserById(ctx context.Context, userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetUsersByIds(ctx context.Context, userIds []int) ([]User, error) {
	args := m.Called(userIds)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockGoChatRepository) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	args := m.Called(query, limit)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockGoChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) GetRoom(ctx context.Context, roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) ListRoomsForUser(ctx context.Context, userId int) ([]RoomListing, error) {
	args := m.Called(userId)
	return args.Get(0).([]RoomListing), args.Error(1)
}
func (m *MockGoChatRepository) GetRoomListing(ctx context.Context, userId, roomId int) (RoomListing, error) {
	args := m.Called(userId, roomId)
	return args.Get(0).(RoomListing), args.Error(1)
}
func (m *MockGoChatRepository) ListOpenSupportRooms(ctx context.Context, regionId *int, limit int) ([]Room, error) {
	args := m.Called(regionId, limit)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockGoChatRepository) AddMember(ctx context.Context, params AddMemberParams) (Membership, error) {
	args := m.Called(params)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockGoChatRepository) GetMembership(ctx context.Context, userId, roomId int) (Membership, error) {
	args := m.Called(userId, roomId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockGoChatRepository) RemoveMember(ctx context.Context, userId, roomId int) error {
	args := m.Called(userId, roomId)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListMembers(ctx context.Context, roomId int) ([]Member, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Member), args.Error(1)
}
func (m *MockGoChatRepository) ListMemberIds(ctx context.Context, roomId int) ([]int, error) {
	args := m.Called(roomId)
	return args.Get(0).([]int), args.Error(1)
}
func (m *MockGoChatRepository) UpdateLastRead(ctx context.Context, userId, roomId, messageId int, seenAt time.Time) error {
	args := m.Called(userId, roomId, messageId, seenAt)
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) GetMessage(ctx context.Context, messageId int) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) LockMessage(ctx context.Context, messageId int) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) UpdateMessageContent(ctx context.Context, messageId int, content string, editedAt time.Time) (Message, error) {
	args := m.Called(messageId, content, editedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) SoftDeleteMessage(ctx context.Context, messageId int, placeholder string) (Message, error) {
	args := m.Called(messageId, placeholder)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) ListMessages(ctx context.Context, roomId, limit, offset int) ([]Message, error) {
	args := m.Called(roomId, limit, offset)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockGoChatRepository) GetUserReaction(ctx context.Context, messageId, userId int) (Reaction, error) {
	args := m.Called(messageId, userId)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockGoChatRepository) CreateReaction(ctx context.Context, params CreateReactionParams) (Reaction, error) {
	args := m.Called(params)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockGoChatRepository) DeleteReaction(ctx context.Context, reactionId int) error {
	args := m.Called(reactionId)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListReactions(ctx context.Context, messageIds []int) ([]Reaction, error) {
	args := m.Called(messageIds)
	return args.Get(0).([]Reaction), args.Error(1)
}
func (m *MockGoChatRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

// RunInTx runs fn against the mock itself.
func (m *MockGoChatRepository) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(m)
}
func (m *MockGoChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
