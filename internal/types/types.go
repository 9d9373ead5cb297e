package types

import (
	"sort"
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	RegionId     *int      `json:"region_id,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeAudio  MessageType = "audio"
	MessageTypeVideo  MessageType = "video"
	MessageTypeSystem MessageType = "system"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile,
		MessageTypeAudio, MessageTypeVideo, MessageTypeSystem:
		return true
	}
	return false
}

// RoomSummary is a room as presented to one viewer. Name and Avatar
// are projected per viewer for direct and support rooms.
type RoomSummary struct {
	Id              int        `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	IsGroup         bool       `json:"is_group"`
	IsSupportRoom   bool       `json:"is_support_room"`
	Avatar          string     `json:"avatar,omitempty"`
	RegionId        *int       `json:"region_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UnreadCount     int        `json:"unread_count"`
	LastMessageId   int        `json:"last_message_id,omitempty"`
	LastMessage     string     `json:"last_message,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	LastSenderName  string     `json:"last_sender_name,omitempty"`
	MemberCount     int        `json:"member_count"`
}

// ActivityTime is the timestamp room lists are ordered by.
func (r RoomSummary) ActivityTime() time.Time {
	if r.LastMessageTime != nil {
		return *r.LastMessageTime
	}
	return r.CreatedAt
}

type Member struct {
	UserId     int        `json:"user_id"`
	Username   string     `json:"username"`
	Avatar     string     `json:"avatar,omitempty"`
	Role       Role       `json:"role"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	IsOnline   bool       `json:"is_online"`
}

type Reaction struct {
	Id       int    `json:"id"`
	UserId   int    `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Emoji    string `json:"emoji"`
}

type Message struct {
	Id               int         `json:"id"`
	RoomId           int         `json:"room_id"`
	SenderId         *int        `json:"sender_id"`
	SenderName       string      `json:"sender_name"`
	SenderAvatar     string      `json:"sender_avatar,omitempty"`
	Content          string      `json:"content"`
	Type             MessageType `json:"type"`
	AttachmentUrl    *string     `json:"attachment_url,omitempty"`
	ReplyToMessageId *int        `json:"reply_to_message_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	IsEdited         bool        `json:"is_edited"`
	EditedAt         *time.Time  `json:"edited_at,omitempty"`
	IsDeleted        bool        `json:"is_deleted"`
	Reactions        []Reaction  `json:"reactions,omitempty"`
	ClientNonce      string      `json:"client_nonce,omitempty"`
}

// SentBy reports whether the message was sent by userId.
func (m Message) SentBy(userId int) bool {
	return m.SenderId != nil && *m.SenderId == userId
}

// DeletedPlaceholder replaces the content of a deleted message.
const DeletedPlaceholder = "[message deleted]"

type ReactionAction string

const (
	ReactionAdded    ReactionAction = "added"
	ReactionReplaced ReactionAction = "replaced"
	ReactionRemoved  ReactionAction = "removed"
)

// ReactionState is the outcome of a reaction toggle. Emoji is empty when
// the user no longer has a reaction on the message.
type ReactionState struct {
	MessageId  int            `json:"message_id"`
	RoomId     int            `json:"room_id"`
	UserId     int            `json:"user_id"`
	UserName   string         `json:"user_name"`
	ReactionId int            `json:"reaction_id"`
	Emoji      string         `json:"emoji"`
	Action     ReactionAction `json:"action"`
	Reactions  []Reaction     `json:"reactions"`
}

type MessageDeleted struct {
	MessageId int  `json:"message_id"`
	RoomId    int  `json:"room_id"`
	IsDeleted bool `json:"is_deleted"`
}

type PresenceChanged struct {
	UserId   int    `json:"user_id"`
	UserName string `json:"user_name"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"is_online"`
}

type TypingChanged struct {
	RoomId   int    `json:"room_id"`
	UserId   int    `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// MessageRead is pushed to the sender of a message once another member read it.
type MessageRead struct {
	MessageId int       `json:"message_id"`
	RoomId    int       `json:"room_id"`
	ReadBy    int       `json:"read_by"`
	ReadAt    time.Time `json:"read_at"`
}

// MessageReadReceipt is pushed to the reader's own connections.
type MessageReadReceipt struct {
	MessageId int       `json:"message_id"`
	RoomId    int       `json:"room_id"`
	ReadAt    time.Time `json:"read_at"`
}

type RoomLeft struct {
	RoomId int `json:"room_id"`
	UserId int `json:"user_id"`
}

type OnlineUser struct {
	Id          int       `json:"id"`
	Username    string    `json:"username"`
	Avatar      string    `json:"avatar,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// SortRooms orders rooms by most recent activity, newest first.
func SortRooms(rooms []RoomSummary) {
	sort.SliceStable(rooms, func(i, j int) bool {
		ti, tj := rooms[i].ActivityTime(), rooms[j].ActivityTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return rooms[i].Id > rooms[j].Id
	})
}

// SortMessages orders messages by creation time with id breaking ties.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].Id < msgs[j].Id
	})
}
