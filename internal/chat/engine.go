package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/npezzotti/go-chatsync/internal/database"
	"github.com/npezzotti/go-chatsync/internal/types"
)

const DeletedPlaceholder = types.DeletedPlaceholder

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	searchLimit     = 20
)

// Publisher hands committed events to the broadcast layer. Publish must
// not block on delivery to individual connections.
type Publisher interface {
	Publish(events ...types.Event)
}

type OnlineChecker interface {
	IsOnline(userId int) bool
}

// Identity is the caller of a command. UserId is zero for guests, who may
// only act inside the support room named by GuestRoomId.
type Identity struct {
	UserId      int
	RegionId    *int
	GuestRoomId int
}

func (id Identity) Authenticated() bool {
	return id.UserId != 0
}

func (id Identity) Anonymous() bool {
	return id.UserId == 0 && id.GuestRoomId == 0
}

type CreateRoomInput struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	IsGroup       bool   `json:"is_group"`
	MemberIds     []int  `json:"member_ids"`
	RegionId      *int   `json:"region_id"`
	IsSupportRoom bool   `json:"is_support_room"`
	GuestFullName string `json:"guest_full_name"`
	GuestEmail    string `json:"guest_email"`
}

type SendMessageInput struct {
	Content          string            `json:"content"`
	Type             types.MessageType `json:"type"`
	AttachmentUrl    *string           `json:"attachment_url"`
	ReplyToMessageId *int              `json:"reply_to_message_id"`
	ClientNonce      string            `json:"client_nonce"`
}

// Engine validates and applies commands. Each mutating command runs in a
// single store transaction while holding the room's lock, and publishes
// its events only after commit, still under that lock, so events of one
// room leave the engine in commit order.
type Engine struct {
	repo   database.GoChatRepository
	pub    Publisher
	online OnlineChecker
	log    hclog.Logger
	rooms  *keyedMutex
	now    func() time.Time
}

func NewEngine(repo database.GoChatRepository, pub Publisher, online OnlineChecker, logger hclog.Logger) *Engine {
	return &Engine{
		repo:   repo,
		pub:    pub,
		online: online,
		log:    logger.Named("engine"),
		rooms:  newKeyedMutex(),
		now:    types.Now,
	}
}

func (e *Engine) publish(events ...types.Event) {
	if len(events) == 0 {
		return
	}

	ts := e.now()
	for i := range events {
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = ts
		}
	}

	e.pub.Publish(events...)
}

func (e *Engine) isOnline(userId int) bool {
	return e.online != nil && e.online.IsOnline(userId)
}

func membershipError(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return errNotMember
	}
	return internal(err)
}

// authorize checks that id may read and post in room.
func authorize(ctx context.Context, st database.Store, id Identity, room database.Room) error {
	if id.Authenticated() {
		if _, err := st.GetMembership(ctx, id.UserId, room.Id); err != nil {
			return membershipError(err)
		}
		return nil
	}

	if id.GuestRoomId == 0 {
		return errNoIdentity
	}
	if !room.IsSupportRoom || id.GuestRoomId != room.Id {
		return forbidden("guests may only use their own support room")
	}
	return nil
}

func (e *Engine) CreateRoom(ctx context.Context, id Identity, in CreateRoomInput) (types.RoomSummary, error) {
	if !id.Authenticated() && !in.IsSupportRoom {
		return types.RoomSummary{}, errNoIdentity
	}

	name := strings.TrimSpace(in.Name)
	if in.IsGroup && name == "" {
		return types.RoomSummary{}, validation("group name is required")
	}
	guestName := strings.TrimSpace(in.GuestFullName)
	if !id.Authenticated() && guestName == "" {
		return types.RoomSummary{}, validation("guest full name is required")
	}

	regionId := in.RegionId
	if regionId == nil {
		regionId = id.RegionId
	}

	var (
		summary   types.RoomSummary
		notifyIds []int
		notify    map[int]types.RoomSummary
	)
	err := e.repo.RunInTx(ctx, func(tx database.Store) error {
		params := database.CreateRoomParams{
			Name:          name,
			Description:   strings.TrimSpace(in.Description),
			IsGroup:       in.IsGroup,
			IsSupportRoom: in.IsSupportRoom,
			RegionId:      regionId,
			GuestFullName: guestName,
			GuestEmail:    strings.TrimSpace(in.GuestEmail),
			CreatedAt:     e.now(),
		}
		if id.Authenticated() {
			creatorId := id.UserId
			params.CreatedBy = &creatorId
		}

		room, err := tx.CreateRoom(ctx, params)
		if err != nil {
			return storeError(err, "creator not found")
		}

		if id.Authenticated() {
			if _, err := tx.AddMember(ctx, database.AddMemberParams{
				UserId:   id.UserId,
				RoomId:   room.Id,
				Role:     database.RoleOwner,
				JoinedAt: room.CreatedAt,
			}); err != nil {
				return internal(err)
			}
		}

		seen := map[int]bool{id.UserId: true}
		for _, memberId := range in.MemberIds {
			if memberId <= 0 || seen[memberId] {
				continue
			}
			seen[memberId] = true

			if _, err := tx.GetUserById(ctx, memberId); err != nil {
				if errors.Is(err, database.ErrNotFound) {
					continue
				}
				return internal(err)
			}

			if _, err := tx.AddMember(ctx, database.AddMemberParams{
				UserId:   memberId,
				RoomId:   room.Id,
				Role:     database.RoleMember,
				JoinedAt: room.CreatedAt,
			}); err != nil {
				return internal(err)
			}
			notifyIds = append(notifyIds, memberId)
		}

		if id.Authenticated() {
			listing, err := tx.GetRoomListing(ctx, id.UserId, room.Id)
			if err != nil {
				return internal(err)
			}
			if summary, err = project(ctx, tx, id.UserId, listing); err != nil {
				return internal(err)
			}
		} else {
			summary = baseSummary(database.RoomListing{Room: room, MemberCount: len(notifyIds)})
		}

		if notify, err = summariesFor(ctx, tx, room.Id, notifyIds); err != nil {
			return internal(err)
		}
		return nil
	})
	if err != nil {
		return types.RoomSummary{}, err
	}

	unlock := e.rooms.Lock(summary.Id)
	defer unlock()

	events := make([]types.Event, 0, len(notifyIds))
	for _, memberId := range notifyIds {
		events = append(events, types.UserEvent(types.EventRoomUpdated, summary.Id, []int{memberId}, notify[memberId]))
	}
	e.publish(events...)

	e.log.Debug("created room", "room_id", summary.Id, "members", len(notifyIds))
	return summary, nil
}

func (e *Engine) SendMessage(ctx context.Context, id Identity, roomId int, in SendMessageInput) (types.Message, error) {
	if id.Anonymous() {
		return types.Message{}, errNoIdentity
	}

	msgType := in.Type
	if msgType == "" {
		msgType = types.MessageTypeText
	}
	if !msgType.Valid() {
		return types.Message{}, validation("unknown message type")
	}
	if strings.TrimSpace(in.Content) == "" && in.AttachmentUrl == nil {
		return types.Message{}, validation("message content is required")
	}

	unlock := e.rooms.Lock(roomId)
	defer unlock()

	var out types.Message
	err := e.repo.RunInTx(ctx, func(tx database.Store) error {
		room, err := tx.GetRoom(ctx, roomId)
		if err != nil {
			return storeError(err, errRoomNotFound.Message)
		}
		if err := authorize(ctx, tx, id, room); err != nil {
			return err
		}

		if in.ReplyToMessageId != nil {
			target, err := tx.GetMessage(ctx, *in.ReplyToMessageId)
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				return internal(err)
			}
			if err != nil || target.RoomId != roomId || target.IsDeleted {
				return notFound("reply target not found")
			}
		}

		params := database.CreateMessageParams{
			RoomId:           roomId,
			Content:          in.Content,
			Type:             string(msgType),
			AttachmentUrl:    in.AttachmentUrl,
			ReplyToMessageId: in.ReplyToMessageId,
			CreatedAt:        e.now(),
		}
		if id.Authenticated() {
			senderId := id.UserId
			params.SenderId = &senderId
		}

		msg, err := tx.CreateMessage(ctx, params)
		if err != nil {
			return storeError(err, errRoomNotFound.Message)
		}
		out = toMessage(msg, nil)
		if !id.Authenticated() {
			out.SenderName = room.GuestFullName
		}
		return nil
	})
	if err != nil {
		return types.Message{}, err
	}

	out.ClientNonce = in.ClientNonce
	e.publish(types.RoomEvent(types.EventMessageReceived, roomId, out))
	return out, nil
}

// roomOf resolves the room a message belongs to so its lock can be taken
// before the transaction starts. A message never changes rooms.
func (e *Engine) roomOf(ctx context.Context, messageId int) (int, error) {
	msg, err := e.repo.GetMessage(ctx, messageId)
	if err != nil {
		return 0, storeError(err, errMessageNotFound.Message)
	}
	return msg.RoomId, nil
}

// lockOwnMessage loads messageId under a row lock and checks that it is
// live and was sent by userId.
func lockOwnMessage(ctx context.Context, tx database.Store, userId, messageId int) (database.Message, error) {
	msg, err := tx.LockMessage(ctx, messageId)
	if err != nil {
		return database.Message{}, storeError(err, errMessageNotFound.Message)
	}
	if msg.IsDeleted {
		return database.Message{}, errMessageNotFound
	}
	if !msg.SentBy(userId) {
		return database.Message{}, errNotYourMessage
	}
	return msg, nil
}

func (e *Engine) EditMessage(ctx context.Context, userId, messageId int, content string) (types.Message, error) {
	if userId == 0 {
		return types.Message{}, errNoIdentity
	}
	if strings.TrimSpace(content) == "" {
		return types.Message{}, validation("message content is required")
	}

	roomId, err := e.roomOf(ctx, messageId)
	if err != nil {
		return types.Message{}, err
	}

	unlock := e.rooms.Lock(roomId)
	defer unlock()

	var out types.Message
	err = e.repo.RunInTx(ctx, func(tx database.Store) error {
		if _, err := lockOwnMessage(ctx, tx, userId, messageId); err != nil {
			return err
		}

		updated, err := tx.UpdateMessageContent(ctx, messageId, content, e.now())
		if err != nil {
			return storeError(err, errMessageNotFound.Message)
		}
		reactions, err := tx.ListReactions(ctx, []int{messageId})
		if err != nil {
			return internal(err)
		}
		out = toMessage(updated, reactions)
		return nil
	})
	if err != nil {
		return types.Message{}, err
	}

	e.publish(types.RoomEvent(types.EventMessageEdited, roomId, out))
	return out, nil
}

func (e *Engine) DeleteMessage(ctx context.Context, userId, messageId int) (types.MessageDeleted, error) {
	if userId == 0 {
		return types.MessageDeleted{}, errNoIdentity
	}

	roomId, err := e.roomOf(ctx, messageId)
	if err != nil {
		return types.MessageDeleted{}, err
	}

	unlock := e.rooms.Lock(roomId)
	defer unlock()

	err = e.repo.RunInTx(ctx, func(tx database.Store) error {
		if _, err := lockOwnMessage(ctx, tx, userId, messageId); err != nil {
			return err
		}
		_, err := tx.SoftDeleteMessage(ctx, messageId, DeletedPlaceholder)
		return storeError(err, errMessageNotFound.Message)
	})
	if err != nil {
		return types.MessageDeleted{}, err
	}

	out := types.MessageDeleted{MessageId: messageId, RoomId: roomId, IsDeleted: true}
	e.publish(types.RoomEvent(types.EventMessageDeleted, roomId, out))
	return out, nil
}

// ReactToMessage toggles userId's reaction on a message. The same emoji
// retracts it; a different emoji first removes the existing one.
func (e *Engine) ReactToMessage(ctx context.Context, userId, messageId int, emoji string) (types.ReactionState, error) {
	if userId == 0 {
		return types.ReactionState{}, errNoIdentity
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return types.ReactionState{}, validation("emoji is required")
	}

	roomId, err := e.roomOf(ctx, messageId)
	if err != nil {
		return types.ReactionState{}, err
	}

	unlock := e.rooms.Lock(roomId)
	defer unlock()

	var state types.ReactionState
	err = e.repo.RunInTx(ctx, func(tx database.Store) error {
		user, err := tx.GetUserById(ctx, userId)
		if err != nil {
			return storeError(err, errUserNotFound.Message)
		}

		msg, err := tx.LockMessage(ctx, messageId)
		if err != nil {
			return storeError(err, errMessageNotFound.Message)
		}
		if msg.IsDeleted {
			return errMessageNotFound
		}
		if _, err := tx.GetMembership(ctx, userId, msg.RoomId); err != nil {
			return membershipError(err)
		}

		state = types.ReactionState{
			MessageId: messageId,
			RoomId:    msg.RoomId,
			UserId:    userId,
			UserName:  user.Username,
		}

		existing, err := tx.GetUserReaction(ctx, messageId, userId)
		switch {
		case err == nil && existing.Emoji == emoji:
			if err := tx.DeleteReaction(ctx, existing.Id); err != nil {
				return internal(err)
			}
			state.Action = types.ReactionRemoved
			state.ReactionId = existing.Id
		case err == nil || errors.Is(err, database.ErrNotFound):
			state.Action = types.ReactionAdded
			if err == nil {
				if err := tx.DeleteReaction(ctx, existing.Id); err != nil {
					return internal(err)
				}
				state.Action = types.ReactionReplaced
			}

			r, err := tx.CreateReaction(ctx, database.CreateReactionParams{
				MessageId: messageId,
				UserId:    userId,
				Emoji:     emoji,
				CreatedAt: e.now(),
			})
			if err != nil {
				return storeError(err, errMessageNotFound.Message)
			}
			state.ReactionId = r.Id
			state.Emoji = emoji
		default:
			return internal(err)
		}

		reactions, err := tx.ListReactions(ctx, []int{messageId})
		if err != nil {
			return internal(err)
		}
		state.Reactions = make([]types.Reaction, 0, len(reactions))
		for _, r := range reactions {
			state.Reactions = append(state.Reactions, toReaction(r))
		}
		return nil
	})
	if err != nil {
		return types.ReactionState{}, err
	}

	e.publish(types.RoomEvent(types.EventMessageReacted, roomId, state))
	return state, nil
}

// ForwardMessage copies a message into targetRoomId as a new message sent
// by userId.
func (e *Engine) ForwardMessage(ctx context.Context, userId, messageId, targetRoomId int) (types.Message, error) {
	if userId == 0 {
		return types.Message{}, errNoIdentity
	}

	unlock := e.rooms.Lock(targetRoomId)
	defer unlock()

	var out types.Message
	err := e.repo.RunInTx(ctx, func(tx database.Store) error {
		orig, err := tx.GetMessage(ctx, messageId)
		if err != nil {
			return storeError(err, errMessageNotFound.Message)
		}
		if orig.IsDeleted {
			return errMessageNotFound
		}
		if _, err := tx.GetMembership(ctx, userId, orig.RoomId); err != nil {
			return membershipError(err)
		}

		if _, err := tx.GetRoom(ctx, targetRoomId); err != nil {
			return storeError(err, errRoomNotFound.Message)
		}
		if _, err := tx.GetMembership(ctx, userId, targetRoomId); err != nil {
			return membershipError(err)
		}

		senderId := userId
		msg, err := tx.CreateMessage(ctx, database.CreateMessageParams{
			RoomId:        targetRoomId,
			SenderId:      &senderId,
			Content:       orig.Content,
			Type:          orig.Type,
			AttachmentUrl: orig.AttachmentUrl,
			CreatedAt:     e.now(),
		})
		if err != nil {
			return storeError(err, errRoomNotFound.Message)
		}
		out = toMessage(msg, nil)
		return nil
	})
	if err != nil {
		return types.Message{}, err
	}

	e.publish(types.RoomEvent(types.EventMessageReceived, targetRoomId, out))
	return out, nil
}

func (e *Engine) roomUpdatedEvents(roomId int, summaries map[int]types.RoomSummary, userIds []int) []types.Event {
	events := make([]types.Event, 0, len(userIds))
	for _, id := range userIds {
		events = append(events, types.UserEvent(types.EventRoomUpdated, roomId, []int{id}, summaries[id]))
	}
	return events
}

func (e *Engine) JoinRoom(ctx context.Context, userId, roomId int) (types.RoomSummary, error) {
	if userId == 0 {
		return types.RoomSummary{}, errNoIdentity
	}

	unlock := e.rooms.Lock(roomId)
	defer unlock()

	var (
		memberIds []int
		summaries map[int]types.RoomSummary
	)
	err := e.repo.RunInTx(ctx, func(tx database.Store) error {
		room, err := tx.GetRoom(ctx, roomId)
		if err != nil {
			return storeError(err, errRoomNotFound.Message)
		}

		_, err = tx.GetMembership(ctx, userId, roomId)
		if err == nil {
			return errAlreadyMember
		}
		if !errors.Is(err, database.ErrNotFound) {
			return internal(err)
		}

		switch {
		case room.IsGroup:
		case room.IsSupportRoom:
			// the first account to join claims the room for the guest
			ids, err := tx.ListMemberIds(ctx, roomId)
			if err != nil {
				return internal(err)
			}
			if len(ids) > 0 {
				return errSupportClaimed
			}
		default:
			return forbidden("direct rooms cannot be joined")
		}

		if _, err := tx.AddMember(ctx, database.AddMemberParams{
			UserId:   userId,
			RoomId:   roomId,
			Role:     database.RoleMember,
			JoinedAt: e.now(),
		}); err != nil {
			return storeError(err, errAlreadyMember.Message)
		}

		if memberIds, err = tx.ListMemberIds(ctx, roomId); err != nil {
			return internal(err)
		}
		if summaries, err = summariesFor(ctx, tx, roomId, memberIds); err != nil {
			return internal(err)
		}
		return nil
	})
	if err != nil {
		return types.RoomSummary{}, err
	}

	e.publish(e.roomUpdatedEvents(roomId, summaries, memberIds)...)
	return summaries[userId], nil
}

func (e *Engine) LeaveRoom(ctx context.Context, userId, roomId int) error {
	if userId == 0 {
		return errNoIdentity
	}

	unlock := e.rooms.Lock(roomId)
	defer unlock()

	var (
		memberIds []int
		summaries map[int]types.RoomSummary
	)
	err := e.repo.RunInTx(ctx, func(tx database.Store) error {
		if _, err := tx.GetRoom(ctx, roomId); err != nil {
			return storeError(err, errRoomNotFound.Message)
		}
		if err := tx.RemoveMember(ctx, userId, roomId); err != nil {
			return storeError(err, "not a member of this room")
		}

		var err error
		if memberIds, err = tx.ListMemberIds(ctx, roomId); err != nil {
			return internal(err)
		}
		if summaries, err = summariesFor(ctx, tx, roomId, memberIds); err != nil {
			return internal(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	events := e.roomUpdatedEvents(roomId, summaries, memberIds)
	events = append(events, types.UserEvent(types.EventRoomLeft, roomId, []int{userId}, types.RoomLeft{RoomId: roomId, UserId: userId}))
	e.publish(events...)
	return nil
}

// MarkRead advances userId's read watermark in roomId to messageId, or to
// the latest message when messageId is zero.
func (e *Engine) MarkRead(ctx context.Context, userId, roomId, messageId int) error {
	if userId == 0 {
		return errNoIdentity
	}

	unlock := e.rooms.Lock(roomId)
	defer unlock()

	readAt := e.now()
	var (
		events []types.Event
		target *database.Message
	)
	err := e.repo.RunInTx(ctx, func(tx database.Store) error {
		if _, err := tx.GetRoom(ctx, roomId); err != nil {
			return storeError(err, errRoomNotFound.Message)
		}

		listing, err := tx.GetRoomListing(ctx, userId, roomId)
		if err != nil {
			return membershipError(err)
		}

		if messageId == 0 {
			target = listing.LastMessage
		} else {
			msg, err := tx.GetMessage(ctx, messageId)
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				return internal(err)
			}
			if err != nil || msg.RoomId != roomId {
				return errMessageNotFound
			}
			target = &msg
		}

		readId := 0
		if target != nil {
			readId = target.Id
		}
		if err := tx.UpdateLastRead(ctx, userId, roomId, readId, readAt); err != nil {
			return storeError(err, errNotMember.Message)
		}

		summaries, err := summariesFor(ctx, tx, roomId, []int{userId})
		if err != nil {
			return internal(err)
		}

		if target != nil {
			if target.SenderId != nil && *target.SenderId != userId {
				events = append(events, types.UserEvent(types.EventMessageRead, roomId, []int{*target.SenderId}, types.MessageRead{
					MessageId: target.Id,
					RoomId:    roomId,
					ReadBy:    userId,
					ReadAt:    readAt,
				}))
			}
			events = append(events, types.UserEvent(types.EventMessageReadReceipt, roomId, []int{userId}, types.MessageReadReceipt{
				MessageId: target.Id,
				RoomId:    roomId,
				ReadAt:    readAt,
			}))
		}
		events = append(events, types.UserEvent(types.EventRoomUpdated, roomId, []int{userId}, summaries[userId]))
		return nil
	})
	if err != nil {
		return err
	}

	e.publish(events...)
	return nil
}

func (e *Engine) ListRooms(ctx context.Context, userId int) ([]types.RoomSummary, error) {
	if userId == 0 {
		return nil, errNoIdentity
	}

	listings, err := e.repo.ListRoomsForUser(ctx, userId)
	if err != nil {
		return nil, internal(err)
	}

	rooms := make([]types.RoomSummary, 0, len(listings))
	for _, l := range listings {
		s, err := project(ctx, e.repo, userId, l)
		if err != nil {
			return nil, internal(err)
		}
		rooms = append(rooms, s)
	}

	types.SortRooms(rooms)
	return rooms, nil
}

// ListMessages returns one page of live messages in ascending order. Page
// one holds the most recent pageSize messages.
func (e *Engine) ListMessages(ctx context.Context, id Identity, roomId, page, pageSize int) ([]types.Message, error) {
	if id.Anonymous() {
		return nil, errNoIdentity
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	room, err := e.repo.GetRoom(ctx, roomId)
	if err != nil {
		return nil, storeError(err, errRoomNotFound.Message)
	}
	if err := authorize(ctx, e.repo, id, room); err != nil {
		return nil, err
	}

	rows, err := e.repo.ListMessages(ctx, roomId, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, internal(err)
	}

	ids := make([]int, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.Id)
	}
	var reactions []database.Reaction
	if len(ids) > 0 {
		if reactions, err = e.repo.ListReactions(ctx, ids); err != nil {
			return nil, internal(err)
		}
	}

	msgs := make([]types.Message, 0, len(rows))
	for _, m := range rows {
		msg := toMessage(m, reactions)
		if m.SenderId == nil && room.IsSupportRoom {
			msg.SenderName = room.GuestFullName
		}
		msgs = append(msgs, msg)
	}

	types.SortMessages(msgs)
	return msgs, nil
}

func (e *Engine) ListMembers(ctx context.Context, userId, roomId int) ([]types.Member, error) {
	if userId == 0 {
		return nil, errNoIdentity
	}

	if _, err := e.repo.GetRoom(ctx, roomId); err != nil {
		return nil, storeError(err, errRoomNotFound.Message)
	}
	if _, err := e.repo.GetMembership(ctx, userId, roomId); err != nil {
		return nil, membershipError(err)
	}

	rows, err := e.repo.ListMembers(ctx, roomId)
	if err != nil {
		return nil, internal(err)
	}

	members := make([]types.Member, 0, len(rows))
	for _, m := range rows {
		members = append(members, toMember(m, e.isOnline(m.UserId)))
	}
	return members, nil
}

// SearchUsers matches other accounts by username or email.
// ListOpenSupportRooms lists support rooms waiting for an agent in the
// caller's region.
func (e *Engine) ListOpenSupportRooms(ctx context.Context, userId int) ([]types.RoomSummary, error) {
	if userId == 0 {
		return nil, errNoIdentity
	}

	user, err := e.repo.GetUserById(ctx, userId)
	if err != nil {
		return nil, storeError(err, errUserNotFound.Message)
	}

	rooms, err := e.repo.ListOpenSupportRooms(ctx, user.RegionId, MaxPageSize)
	if err != nil {
		return nil, internal(err)
	}

	out := make([]types.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		s := baseSummary(database.RoomListing{Room: r})
		if r.GuestFullName != "" {
			s.Name = r.GuestFullName
		}
		out = append(out, s)
	}
	return out, nil
}

func (e *Engine) SearchUsers(ctx context.Context, userId int, query string) ([]types.User, error) {
	if userId == 0 {
		return nil, errNoIdentity
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validation("query is required")
	}

	rows, err := e.repo.SearchUsers(ctx, query, searchLimit+1)
	if err != nil {
		return nil, internal(err)
	}

	users := make([]types.User, 0, len(rows))
	for _, u := range rows {
		if u.Id == userId || len(users) == searchLimit {
			continue
		}
		users = append(users, toUser(u))
	}
	return users, nil
}
