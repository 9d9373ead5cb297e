package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	accountColumns = "id, username, email, password_hash, avatar, region_id, created_at, updated_at"

	messageSelect = "SELECT m.id, m.room_id, m.sender_id, COALESCE(a.username, ''), COALESCE(a.avatar, ''), " +
		"m.content, m.type, m.attachment_url, m.reply_to_message_id, m.created_at, m.is_edited, m.edited_at, m.is_deleted " +
		"FROM messages m LEFT JOIN accounts a ON a.id = m.sender_id "

	roomListingSelect = `
		SELECT
				r.id, r.name, r.description, r.is_group, r.is_support_room, r.created_by, r.region_id,
				r.guest_full_name, r.guest_email, r.created_at,
				mb.role,
				mb.last_read_message_id,
				(SELECT COUNT(*) FROM memberships x WHERE x.room_id = r.id) AS member_count,
				(SELECT COUNT(*) FROM messages u
					WHERE u.room_id = r.id AND u.id > mb.last_read_message_id AND NOT u.is_deleted
					AND (u.sender_id IS NULL OR u.sender_id <> mb.account_id)) AS unread_count,
				lm.id, lm.sender_id, COALESCE(la.username, ''), lm.content, lm.type, lm.created_at
		FROM memberships mb
		JOIN rooms r ON r.id = mb.room_id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, type, created_at FROM messages
			WHERE room_id = r.id AND NOT is_deleted
			ORDER BY created_at DESC, id DESC LIMIT 1
		) lm ON TRUE
		LEFT JOIN accounts la ON la.id = lm.sender_id
		WHERE mb.account_id = $1`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func nullTimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func scanUser(row rowScanner) (User, error) {
	var (
		u        User
		regionId sql.NullInt64
	)
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.Avatar,
		&regionId,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	u.RegionId = nullIntPtr(regionId)
	return u, err
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg        Message
		senderId   sql.NullInt64
		attachment sql.NullString
		replyTo    sql.NullInt64
		editedAt   sql.NullTime
	)
	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&senderId,
		&msg.SenderName,
		&msg.SenderAvatar,
		&msg.Content,
		&msg.Type,
		&attachment,
		&replyTo,
		&msg.CreatedAt,
		&msg.IsEdited,
		&editedAt,
		&msg.IsDeleted,
	)
	msg.SenderId = nullIntPtr(senderId)
	msg.AttachmentUrl = nullStringPtr(attachment)
	msg.ReplyToMessageId = nullIntPtr(replyTo)
	msg.EditedAt = nullTimePtr(editedAt)
	return msg, err
}

func scanRoomListing(row rowScanner) (RoomListing, error) {
	var (
		l             RoomListing
		createdBy     sql.NullInt64
		regionId      sql.NullInt64
		lastId        sql.NullInt64
		lastSender    sql.NullInt64
		lastName      string
		lastContent   sql.NullString
		lastType      sql.NullString
		lastCreatedAt sql.NullTime
	)
	err := row.Scan(
		&l.Id,
		&l.Name,
		&l.Description,
		&l.IsGroup,
		&l.IsSupportRoom,
		&createdBy,
		&regionId,
		&l.GuestFullName,
		&l.GuestEmail,
		&l.CreatedAt,
		&l.Role,
		&l.LastReadMessageId,
		&l.MemberCount,
		&l.UnreadCount,
		&lastId,
		&lastSender,
		&lastName,
		&lastContent,
		&lastType,
		&lastCreatedAt,
	)
	if err != nil {
		return RoomListing{}, err
	}

	l.CreatedBy = nullIntPtr(createdBy)
	l.RegionId = nullIntPtr(regionId)
	if lastId.Valid {
		l.LastMessage = &Message{
			Id:         int(lastId.Int64),
			RoomId:     l.Id,
			SenderId:   nullIntPtr(lastSender),
			SenderName: lastName,
			Content:    lastContent.String,
			Type:       lastType.String,
			CreatedAt:  lastCreatedAt.Time,
		}
	}

	return l, nil
}

func (db *pgStore) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	now := time.Now().UTC()
	row := db.q.QueryRowContext(ctx,
		"INSERT INTO accounts (username, email, password_hash, avatar, region_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+accountColumns,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.Avatar,
		intPtrArg(params.RegionId),
		now,
		now,
	)

	u, err := scanUser(row)
	return u, mapError(err)
}

func (db *pgStore) GetUserById(ctx context.Context, userId int) (User, error) {
	row := db.q.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		userId,
	)

	u, err := scanUser(row)
	return u, mapError(err)
}

func (db *pgStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := db.q.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	u, err := scanUser(row)
	return u, mapError(err)
}

func (db *pgStore) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := db.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *pgStore) GetUsersByIds(ctx context.Context, userIds []int) ([]User, error) {
	return db.queryUsers(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ANY($1) ORDER BY id",
		pq.Array(userIds),
	)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes the LIKE wildcards in s so it matches literally
// under the default backslash escape.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (db *pgStore) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	return db.queryUsers(ctx,
		"SELECT "+accountColumns+" FROM accounts "+
			"WHERE username ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%' ORDER BY username LIMIT $2",
		escapeLike(query),
		limit,
	)
}

func (db *pgStore) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	row := db.q.QueryRowContext(ctx,
		"INSERT INTO rooms (name, description, is_group, is_support_room, created_by, region_id, guest_full_name, guest_email, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) "+
			"RETURNING id, name, description, is_group, is_support_room, created_by, region_id, guest_full_name, guest_email, created_at",
		params.Name,
		params.Description,
		params.IsGroup,
		params.IsSupportRoom,
		intPtrArg(params.CreatedBy),
		intPtrArg(params.RegionId),
		params.GuestFullName,
		params.GuestEmail,
		params.CreatedAt,
	)

	room, err := scanRoom(row)
	return room, mapError(err)
}

func scanRoom(row rowScanner) (Room, error) {
	var (
		room      Room
		createdBy sql.NullInt64
		regionId  sql.NullInt64
	)
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Description,
		&room.IsGroup,
		&room.IsSupportRoom,
		&createdBy,
		&regionId,
		&room.GuestFullName,
		&room.GuestEmail,
		&room.CreatedAt,
	)
	room.CreatedBy = nullIntPtr(createdBy)
	room.RegionId = nullIntPtr(regionId)
	return room, err
}

func (db *pgStore) GetRoom(ctx context.Context, roomId int) (Room, error) {
	row := db.q.QueryRowContext(ctx,
		"SELECT id, name, description, is_group, is_support_room, created_by, region_id, guest_full_name, guest_email, created_at "+
			"FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	room, err := scanRoom(row)
	return room, mapError(err)
}

func (db *pgStore) ListRoomsForUser(ctx context.Context, userId int) ([]RoomListing, error) {
	rows, err := db.q.QueryContext(ctx, roomListingSelect, userId)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	listings := make([]RoomListing, 0)
	for rows.Next() {
		l, err := scanRoomListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

func (db *pgStore) GetRoomListing(ctx context.Context, userId, roomId int) (RoomListing, error) {
	row := db.q.QueryRowContext(ctx, roomListingSelect+" AND r.id = $2", userId, roomId)

	l, err := scanRoomListing(row)
	return l, mapError(err)
}

func (db *pgStore) ListOpenSupportRooms(ctx context.Context, regionId *int, limit int) ([]Room, error) {
	rows, err := db.q.QueryContext(ctx,
		"SELECT id, name, description, is_group, is_support_room, created_by, region_id, guest_full_name, guest_email, created_at "+
			"FROM rooms r WHERE r.is_support_room "+
			"AND NOT EXISTS (SELECT 1 FROM memberships mb WHERE mb.room_id = r.id) "+
			"AND ($1::integer IS NULL OR r.region_id IS NULL OR r.region_id = $1) "+
			"ORDER BY r.created_at, r.id LIMIT $2",
		intPtrArg(regionId),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list support rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *pgStore) AddMember(ctx context.Context, params AddMemberParams) (Membership, error) {
	row := db.q.QueryRowContext(ctx,
		"INSERT INTO memberships (account_id, room_id, role, joined_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, account_id, room_id, role, last_read_message_id, joined_at, last_seen_at",
		params.UserId,
		params.RoomId,
		params.Role,
		params.JoinedAt,
	)

	m, err := scanMembership(row)
	return m, mapError(err)
}

func scanMembership(row rowScanner) (Membership, error) {
	var (
		m          Membership
		lastSeenAt sql.NullTime
	)
	err := row.Scan(
		&m.Id,
		&m.UserId,
		&m.RoomId,
		&m.Role,
		&m.LastReadMessageId,
		&m.JoinedAt,
		&lastSeenAt,
	)
	m.LastSeenAt = nullTimePtr(lastSeenAt)
	return m, err
}

func (db *pgStore) GetMembership(ctx context.Context, userId, roomId int) (Membership, error) {
	row := db.q.QueryRowContext(ctx,
		"SELECT id, account_id, room_id, role, last_read_message_id, joined_at, last_seen_at "+
			"FROM memberships WHERE account_id = $1 AND room_id = $2 LIMIT 1",
		userId,
		roomId,
	)

	m, err := scanMembership(row)
	return m, mapError(err)
}

func (db *pgStore) RemoveMember(ctx context.Context, userId, roomId int) error {
	res, err := db.q.ExecContext(ctx,
		"DELETE FROM memberships WHERE account_id = $1 AND room_id = $2",
		userId,
		roomId,
	)
	if err != nil {
		return mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *pgStore) ListMembers(ctx context.Context, roomId int) ([]Member, error) {
	rows, err := db.q.QueryContext(ctx,
		"SELECT mb.id, mb.account_id, mb.room_id, mb.role, mb.last_read_message_id, mb.joined_at, mb.last_seen_at, "+
			"a.username, a.avatar FROM memberships mb JOIN accounts a ON a.id = mb.account_id "+
			"WHERE mb.room_id = $1 ORDER BY mb.joined_at, mb.id",
		roomId,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		var (
			m          Member
			lastSeenAt sql.NullTime
		)
		if err := rows.Scan(
			&m.Id,
			&m.UserId,
			&m.RoomId,
			&m.Role,
			&m.LastReadMessageId,
			&m.JoinedAt,
			&lastSeenAt,
			&m.Username,
			&m.Avatar,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.LastSeenAt = nullTimePtr(lastSeenAt)
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *pgStore) ListMemberIds(ctx context.Context, roomId int) ([]int, error) {
	rows, err := db.q.QueryContext(ctx,
		"SELECT account_id FROM memberships WHERE room_id = $1 ORDER BY account_id",
		roomId,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (db *pgStore) UpdateLastRead(ctx context.Context, userId, roomId, messageId int, seenAt time.Time) error {
	res, err := db.q.ExecContext(ctx,
		"UPDATE memberships SET last_read_message_id = GREATEST(last_read_message_id, $3), last_seen_at = $4 "+
			"WHERE account_id = $1 AND room_id = $2",
		userId,
		roomId,
		messageId,
		seenAt,
	)
	if err != nil {
		return mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *pgStore) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	var id int
	err := db.q.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, sender_id, content, type, attachment_url, reply_to_message_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		params.RoomId,
		intPtrArg(params.SenderId),
		params.Content,
		params.Type,
		stringPtrArg(params.AttachmentUrl),
		intPtrArg(params.ReplyToMessageId),
		params.CreatedAt,
	).Scan(&id)
	if err != nil {
		return Message{}, mapError(err)
	}

	return db.GetMessage(ctx, id)
}

func (db *pgStore) GetMessage(ctx context.Context, messageId int) (Message, error) {
	row := db.q.QueryRowContext(ctx, messageSelect+"WHERE m.id = $1", messageId)

	msg, err := scanMessage(row)
	return msg, mapError(err)
}

func (db *pgStore) LockMessage(ctx context.Context, messageId int) (Message, error) {
	row := db.q.QueryRowContext(ctx, messageSelect+"WHERE m.id = $1 FOR UPDATE OF m", messageId)

	msg, err := scanMessage(row)
	return msg, mapError(err)
}

func (db *pgStore) UpdateMessageContent(ctx context.Context, messageId int, content string, editedAt time.Time) (Message, error) {
	res, err := db.q.ExecContext(ctx,
		"UPDATE messages SET content = $2, is_edited = TRUE, edited_at = $3 WHERE id = $1 AND NOT is_deleted",
		messageId,
		content,
		editedAt,
	)
	if err != nil {
		return Message{}, mapError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Message{}, err
	} else if n == 0 {
		return Message{}, ErrNotFound
	}

	return db.GetMessage(ctx, messageId)
}

func (db *pgStore) SoftDeleteMessage(ctx context.Context, messageId int, placeholder string) (Message, error) {
	res, err := db.q.ExecContext(ctx,
		"UPDATE messages SET is_deleted = TRUE, content = $2 WHERE id = $1",
		messageId,
		placeholder,
	)
	if err != nil {
		return Message{}, mapError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Message{}, err
	} else if n == 0 {
		return Message{}, ErrNotFound
	}

	return db.GetMessage(ctx, messageId)
}

func (db *pgStore) ListMessages(ctx context.Context, roomId, limit, offset int) ([]Message, error) {
	rows, err := db.q.QueryContext(ctx,
		messageSelect+"WHERE m.room_id = $1 AND NOT m.is_deleted ORDER BY m.created_at DESC, m.id DESC LIMIT $2 OFFSET $3",
		roomId,
		limit,
		offset,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

const reactionSelect = "SELECT r.id, r.message_id, r.account_id, COALESCE(a.username, ''), r.emoji, r.created_at " +
	"FROM reactions r LEFT JOIN accounts a ON a.id = r.account_id "

func scanReaction(row rowScanner) (Reaction, error) {
	var r Reaction
	err := row.Scan(&r.Id, &r.MessageId, &r.UserId, &r.Username, &r.Emoji, &r.CreatedAt)
	return r, err
}

func (db *pgStore) GetUserReaction(ctx context.Context, messageId, userId int) (Reaction, error) {
	row := db.q.QueryRowContext(ctx,
		reactionSelect+"WHERE r.message_id = $1 AND r.account_id = $2 LIMIT 1",
		messageId,
		userId,
	)

	r, err := scanReaction(row)
	return r, mapError(err)
}

func (db *pgStore) CreateReaction(ctx context.Context, params CreateReactionParams) (Reaction, error) {
	var id int
	err := db.q.QueryRowContext(ctx,
		"INSERT INTO reactions (message_id, account_id, emoji, created_at) VALUES ($1, $2, $3, $4) RETURNING id",
		params.MessageId,
		params.UserId,
		params.Emoji,
		params.CreatedAt,
	).Scan(&id)
	if err != nil {
		return Reaction{}, mapError(err)
	}

	row := db.q.QueryRowContext(ctx, reactionSelect+"WHERE r.id = $1", id)
	r, err := scanReaction(row)
	return r, mapError(err)
}

func (db *pgStore) DeleteReaction(ctx context.Context, reactionId int) error {
	res, err := db.q.ExecContext(ctx, "DELETE FROM reactions WHERE id = $1", reactionId)
	if err != nil {
		return mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *pgStore) ListReactions(ctx context.Context, messageIds []int) ([]Reaction, error) {
	rows, err := db.q.QueryContext(ctx,
		reactionSelect+"WHERE r.message_id = ANY($1) ORDER BY r.message_id, r.id",
		pq.Array(messageIds),
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	reactions := make([]Reaction, 0)
	for rows.Next() {
		r, err := scanReaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		reactions = append(reactions, r)
	}

	return reactions, rows.Err()
}
