package database

import "time"

type Room struct {
	Id            int
	Name          string
	Description   string
	IsGroup       bool
	IsSupportRoom bool
	CreatedBy     *int
	RegionId      *int
	GuestFullName string
	GuestEmail    string
	CreatedAt     time.Time
}

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	Avatar       string
	RegionId     *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type Membership struct {
	Id                int
	UserId            int
	RoomId            int
	Role              Role
	LastReadMessageId int
	JoinedAt          time.Time
	LastSeenAt        *time.Time
}

// Member is a membership joined with the member's account.
type Member struct {
	Membership
	Username string
	Avatar   string
}

type Message struct {
	Id               int
	RoomId           int
	SenderId         *int
	SenderName       string
	SenderAvatar     string
	Content          string
	Type             string
	AttachmentUrl    *string
	ReplyToMessageId *int
	CreatedAt        time.Time
	IsEdited         bool
	EditedAt         *time.Time
	IsDeleted        bool
}

func (m Message) SentBy(userId int) bool {
	return m.SenderId != nil && *m.SenderId == userId
}

type Reaction struct {
	Id        int
	MessageId int
	UserId    int
	Username  string
	Emoji     string
	CreatedAt time.Time
}

// RoomListing is a room row as seen by one member, with the aggregates
// needed to build a room summary.
type RoomListing struct {
	Room
	Role              Role
	UnreadCount       int
	MemberCount       int
	LastMessage       *Message
	LastReadMessageId int
}

type CreateUserParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	Avatar       string
	RegionId     *int
}

type CreateRoomParams struct {
	Name          string
	Description   string
	IsGroup       bool
	IsSupportRoom bool
	CreatedBy     *int
	RegionId      *int
	GuestFullName string
	GuestEmail    string
	CreatedAt     time.Time
}

type AddMemberParams struct {
	UserId   int
	RoomId   int
	Role     Role
	JoinedAt time.Time
}

type CreateMessageParams struct {
	RoomId           int
	SenderId         *int
	Content          string
	Type             string
	AttachmentUrl    *string
	ReplyToMessageId *int
	CreatedAt        time.Time
}

type CreateReactionParams struct {
	MessageId int
	UserId    int
	Emoji     string
	CreatedAt time.Time
}
