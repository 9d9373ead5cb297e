package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memberKey struct {
	userId int
	roomId int
}

// memState is the full data set of a MemoryRepository. It is copied at the
// start of a transaction and swapped in on commit.
type memState struct {
	seq         int
	users       map[int]User
	rooms       map[int]Room
	memberships map[memberKey]Membership
	messages    map[int]Message
	reactions   map[int]Reaction
}

func newMemState() *memState {
	return &memState{
		users:       make(map[int]User),
		rooms:       make(map[int]Room),
		memberships: make(map[memberKey]Membership),
		messages:    make(map[int]Message),
		reactions:   make(map[int]Reaction),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:         s.seq,
		users:       make(map[int]User, len(s.users)),
		rooms:       make(map[int]Room, len(s.rooms)),
		memberships: make(map[memberKey]Membership, len(s.memberships)),
		messages:    make(map[int]Message, len(s.messages)),
		reactions:   make(map[int]Reaction, len(s.reactions)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.messages {
		c.messages[k] = v
	}
	for k, v := range s.reactions {
		c.reactions[k] = v
	}
	return c
}

func (s *memState) nextId() int {
	s.seq++
	return s.seq
}

// memStore implements Store over a memState. mu is nil for the Store handed
// to a transaction, which already runs under the repository lock.
type memStore struct {
	mu    *sync.Mutex
	state *memState
}

func (m *memStore) lock() func() {
	if m.mu == nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// MemoryRepository is an in-process GoChatRepository. Transactions are
// serialized and roll back by discarding their working copy.
type MemoryRepository struct {
	*memStore
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{memStore: &memStore{mu: &sync.Mutex{}, state: newMemState()}}
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := r.state.clone()
	if err := fn(&memStore{state: working}); err != nil {
		return err
	}

	r.state = working
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

func (m *memStore) withSender(msg Message) Message {
	msg.SenderName, msg.SenderAvatar = "", ""
	if msg.SenderId != nil {
		if u, ok := m.state.users[*msg.SenderId]; ok {
			msg.SenderName = u.Username
			msg.SenderAvatar = u.Avatar
		}
	}
	return msg
}

func (m *memStore) withUsername(r Reaction) Reaction {
	r.Username = m.state.users[r.UserId].Username
	return r
}

func (m *memStore) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	defer m.lock()()

	for _, u := range m.state.users {
		if u.Username == params.Username {
			return User{}, fmt.Errorf("%w: accounts_username_key", ErrConflict)
		}
		if u.EmailAddress == params.EmailAddress {
			return User{}, fmt.Errorf("%w: accounts_email_key", ErrConflict)
		}
	}

	now := time.Now().UTC()
	u := User{
		Id:           m.state.nextId(),
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		Avatar:       params.Avatar,
		RegionId:     params.RegionId,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.state.users[u.Id] = u
	return u, nil
}

func (m *memStore) GetUserById(ctx context.Context, userId int) (User, error) {
	defer m.lock()()

	u, ok := m.state.users[userId]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	defer m.lock()()

	for _, u := range m.state.users {
		if u.EmailAddress == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memStore) GetUsersByIds(ctx context.Context, userIds []int) ([]User, error) {
	defer m.lock()()

	users := make([]User, 0, len(userIds))
	seen := make(map[int]bool, len(userIds))
	for _, id := range userIds {
		if u, ok := m.state.users[id]; ok && !seen[id] {
			seen[id] = true
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Id < users[j].Id })
	return users, nil
}

func (m *memStore) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	defer m.lock()()

	q := strings.ToLower(query)
	users := make([]User, 0)
	for _, u := range m.state.users {
		if strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.EmailAddress), q) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (m *memStore) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	defer m.lock()()

	if params.CreatedBy != nil {
		if _, ok := m.state.users[*params.CreatedBy]; !ok {
			return Room{}, fmt.Errorf("%w: rooms_created_by_fkey", ErrNotFound)
		}
	}

	room := Room{
		Id:            m.state.nextId(),
		Name:          params.Name,
		Description:   params.Description,
		IsGroup:       params.IsGroup,
		IsSupportRoom: params.IsSupportRoom,
		CreatedBy:     params.CreatedBy,
		RegionId:      params.RegionId,
		GuestFullName: params.GuestFullName,
		GuestEmail:    params.GuestEmail,
		CreatedAt:     params.CreatedAt,
	}
	m.state.rooms[room.Id] = room
	return room, nil
}

func (m *memStore) GetRoom(ctx context.Context, roomId int) (Room, error) {
	defer m.lock()()

	room, ok := m.state.rooms[roomId]
	if !ok {
		return Room{}, ErrNotFound
	}
	return room, nil
}

func (m *memStore) listing(membership Membership) RoomListing {
	room := m.state.rooms[membership.RoomId]
	l := RoomListing{
		Room:              room,
		Role:              membership.Role,
		LastReadMessageId: membership.LastReadMessageId,
	}

	for k := range m.state.memberships {
		if k.roomId == room.Id {
			l.MemberCount++
		}
	}

	var last *Message
	for _, msg := range m.state.messages {
		if msg.RoomId != room.Id || msg.IsDeleted {
			continue
		}
		if msg.Id > membership.LastReadMessageId && !msg.SentBy(membership.UserId) {
			l.UnreadCount++
		}
		if last == nil || newer(msg, *last) {
			c := msg
			last = &c
		}
	}
	if last != nil {
		withSender := m.withSender(*last)
		l.LastMessage = &withSender
	}

	return l
}

// newer orders messages by creation time, then id.
func newer(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Id > b.Id
}

func (m *memStore) ListRoomsForUser(ctx context.Context, userId int) ([]RoomListing, error) {
	defer m.lock()()

	listings := make([]RoomListing, 0)
	for k, membership := range m.state.memberships {
		if k.userId == userId {
			listings = append(listings, m.listing(membership))
		}
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].Id < listings[j].Id })
	return listings, nil
}

func (m *memStore) GetRoomListing(ctx context.Context, userId, roomId int) (RoomListing, error) {
	defer m.lock()()

	membership, ok := m.state.memberships[memberKey{userId, roomId}]
	if !ok {
		return RoomListing{}, ErrNotFound
	}
	return m.listing(membership), nil
}

func (m *memStore) ListOpenSupportRooms(ctx context.Context, regionId *int, limit int) ([]Room, error) {
	defer m.lock()()

	claimed := make(map[int]bool)
	for k := range m.state.memberships {
		claimed[k.roomId] = true
	}

	rooms := make([]Room, 0)
	for _, r := range m.state.rooms {
		if !r.IsSupportRoom || claimed[r.Id] {
			continue
		}
		if regionId != nil && r.RegionId != nil && *r.RegionId != *regionId {
			continue
		}
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].Id < rooms[j].Id
	})
	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

func (m *memStore) AddMember(ctx context.Context, params AddMemberParams) (Membership, error) {
	defer m.lock()()

	if _, ok := m.state.users[params.UserId]; !ok {
		return Membership{}, fmt.Errorf("%w: memberships_account_id_fkey", ErrNotFound)
	}
	if _, ok := m.state.rooms[params.RoomId]; !ok {
		return Membership{}, fmt.Errorf("%w: memberships_room_id_fkey", ErrNotFound)
	}

	key := memberKey{params.UserId, params.RoomId}
	if _, ok := m.state.memberships[key]; ok {
		return Membership{}, fmt.Errorf("%w: memberships_account_room_key", ErrConflict)
	}

	membership := Membership{
		Id:       m.state.nextId(),
		UserId:   params.UserId,
		RoomId:   params.RoomId,
		Role:     params.Role,
		JoinedAt: params.JoinedAt,
	}
	m.state.memberships[key] = membership
	return membership, nil
}

func (m *memStore) GetMembership(ctx context.Context, userId, roomId int) (Membership, error) {
	defer m.lock()()

	membership, ok := m.state.memberships[memberKey{userId, roomId}]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return membership, nil
}

func (m *memStore) RemoveMember(ctx context.Context, userId, roomId int) error {
	defer m.lock()()

	key := memberKey{userId, roomId}
	if _, ok := m.state.memberships[key]; !ok {
		return ErrNotFound
	}
	delete(m.state.memberships, key)
	return nil
}

func (m *memStore) ListMembers(ctx context.Context, roomId int) ([]Member, error) {
	defer m.lock()()

	members := make([]Member, 0)
	for k, membership := range m.state.memberships {
		if k.roomId != roomId {
			continue
		}
		u := m.state.users[k.userId]
		members = append(members, Member{
			Membership: membership,
			Username:   u.Username,
			Avatar:     u.Avatar,
		})
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].Id < members[j].Id
	})
	return members, nil
}

func (m *memStore) ListMemberIds(ctx context.Context, roomId int) ([]int, error) {
	defer m.lock()()

	ids := make([]int, 0)
	for k := range m.state.memberships {
		if k.roomId == roomId {
			ids = append(ids, k.userId)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *memStore) UpdateLastRead(ctx context.Context, userId, roomId, messageId int, seenAt time.Time) error {
	defer m.lock()()

	key := memberKey{userId, roomId}
	membership, ok := m.state.memberships[key]
	if !ok {
		return ErrNotFound
	}
	if messageId > membership.LastReadMessageId {
		membership.LastReadMessageId = messageId
	}
	membership.LastSeenAt = &seenAt
	m.state.memberships[key] = membership
	return nil
}

func (m *memStore) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	defer m.lock()()

	if _, ok := m.state.rooms[params.RoomId]; !ok {
		return Message{}, fmt.Errorf("%w: messages_room_id_fkey", ErrNotFound)
	}
	if params.ReplyToMessageId != nil {
		if _, ok := m.state.messages[*params.ReplyToMessageId]; !ok {
			return Message{}, fmt.Errorf("%w: messages_reply_to_message_id_fkey", ErrNotFound)
		}
	}

	msg := Message{
		Id:               m.state.nextId(),
		RoomId:           params.RoomId,
		SenderId:         params.SenderId,
		Content:          params.Content,
		Type:             params.Type,
		AttachmentUrl:    params.AttachmentUrl,
		ReplyToMessageId: params.ReplyToMessageId,
		CreatedAt:        params.CreatedAt,
	}
	m.state.messages[msg.Id] = msg
	return m.withSender(msg), nil
}

func (m *memStore) GetMessage(ctx context.Context, messageId int) (Message, error) {
	defer m.lock()()

	msg, ok := m.state.messages[messageId]
	if !ok {
		return Message{}, ErrNotFound
	}
	return m.withSender(msg), nil
}

func (m *memStore) LockMessage(ctx context.Context, messageId int) (Message, error) {
	return m.GetMessage(ctx, messageId)
}

func (m *memStore) UpdateMessageContent(ctx context.Context, messageId int, content string, editedAt time.Time) (Message, error) {
	defer m.lock()()

	msg, ok := m.state.messages[messageId]
	if !ok || msg.IsDeleted {
		return Message{}, ErrNotFound
	}
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &editedAt
	m.state.messages[messageId] = msg
	return m.withSender(msg), nil
}

func (m *memStore) SoftDeleteMessage(ctx context.Context, messageId int, placeholder string) (Message, error) {
	defer m.lock()()

	msg, ok := m.state.messages[messageId]
	if !ok {
		return Message{}, ErrNotFound
	}
	msg.IsDeleted = true
	msg.Content = placeholder
	m.state.messages[messageId] = msg
	return m.withSender(msg), nil
}

func (m *memStore) ListMessages(ctx context.Context, roomId, limit, offset int) ([]Message, error) {
	defer m.lock()()

	messages := make([]Message, 0)
	for _, msg := range m.state.messages {
		if msg.RoomId == roomId && !msg.IsDeleted {
			messages = append(messages, m.withSender(msg))
		}
	}
	sort.Slice(messages, func(i, j int) bool { return newer(messages[i], messages[j]) })

	if offset >= len(messages) {
		return []Message{}, nil
	}
	messages = messages[offset:]
	if limit >= 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (m *memStore) GetUserReaction(ctx context.Context, messageId, userId int) (Reaction, error) {
	defer m.lock()()

	for _, r := range m.state.reactions {
		if r.MessageId == messageId && r.UserId == userId {
			return m.withUsername(r), nil
		}
	}
	return Reaction{}, ErrNotFound
}

func (m *memStore) CreateReaction(ctx context.Context, params CreateReactionParams) (Reaction, error) {
	defer m.lock()()

	if _, ok := m.state.messages[params.MessageId]; !ok {
		return Reaction{}, fmt.Errorf("%w: reactions_message_id_fkey", ErrNotFound)
	}
	for _, r := range m.state.reactions {
		if r.MessageId == params.MessageId && r.UserId == params.UserId {
			return Reaction{}, fmt.Errorf("%w: reactions_message_account_key", ErrConflict)
		}
	}

	r := Reaction{
		Id:        m.state.nextId(),
		MessageId: params.MessageId,
		UserId:    params.UserId,
		Emoji:     params.Emoji,
		CreatedAt: params.CreatedAt,
	}
	m.state.reactions[r.Id] = r
	return m.withUsername(r), nil
}

func (m *memStore) DeleteReaction(ctx context.Context, reactionId int) error {
	defer m.lock()()

	if _, ok := m.state.reactions[reactionId]; !ok {
		return ErrNotFound
	}
	delete(m.state.reactions, reactionId)
	return nil
}

func (m *memStore) ListReactions(ctx context.Context, messageIds []int) ([]Reaction, error) {
	defer m.lock()()

	wanted := make(map[int]bool, len(messageIds))
	for _, id := range messageIds {
		wanted[id] = true
	}

	reactions := make([]Reaction, 0)
	for _, r := range m.state.reactions {
		if wanted[r.MessageId] {
			reactions = append(reactions, m.withUsername(r))
		}
	}
	sort.Slice(reactions, func(i, j int) bool {
		if reactions[i].MessageId != reactions[j].MessageId {
			return reactions[i].MessageId < reactions[j].MessageId
		}
		return reactions[i].Id < reactions[j].Id
	})
	return reactions, nil
}
