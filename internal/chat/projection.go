package chat

import (
	"context"

	"github.com/npezzotti/go-chatsync/internal/database"
	"github.com/npezzotti/go-chatsync/internal/types"
)

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		Avatar:       u.Avatar,
		RegionId:     u.RegionId,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func toReaction(r database.Reaction) types.Reaction {
	return types.Reaction{
		Id:       r.Id,
		UserId:   r.UserId,
		UserName: r.Username,
		Emoji:    r.Emoji,
	}
}

func toMessage(m database.Message, reactions []database.Reaction) types.Message {
	msg := types.Message{
		Id:               m.Id,
		RoomId:           m.RoomId,
		SenderId:         m.SenderId,
		SenderName:       m.SenderName,
		SenderAvatar:     m.SenderAvatar,
		Content:          m.Content,
		Type:             types.MessageType(m.Type),
		AttachmentUrl:    m.AttachmentUrl,
		ReplyToMessageId: m.ReplyToMessageId,
		CreatedAt:        m.CreatedAt,
		IsEdited:         m.IsEdited,
		EditedAt:         m.EditedAt,
		IsDeleted:        m.IsDeleted,
	}
	for _, r := range reactions {
		if r.MessageId == m.Id {
			msg.Reactions = append(msg.Reactions, toReaction(r))
		}
	}
	return msg
}

func toMember(m database.Member, online bool) types.Member {
	return types.Member{
		UserId:     m.UserId,
		Username:   m.Username,
		Avatar:     m.Avatar,
		Role:       types.Role(m.Role),
		JoinedAt:   m.JoinedAt,
		LastSeenAt: m.LastSeenAt,
		IsOnline:   online,
	}
}

func baseSummary(l database.RoomListing) types.RoomSummary {
	s := types.RoomSummary{
		Id:            l.Id,
		Name:          l.Name,
		Description:   l.Description,
		IsGroup:       l.IsGroup,
		IsSupportRoom: l.IsSupportRoom,
		RegionId:      l.RegionId,
		CreatedAt:     l.CreatedAt,
		UnreadCount:   l.UnreadCount,
		MemberCount:   l.MemberCount,
	}
	if l.LastMessage != nil {
		t := l.LastMessage.CreatedAt
		s.LastMessageId = l.LastMessage.Id
		s.LastMessage = l.LastMessage.Content
		s.LastMessageTime = &t
		s.LastSenderName = l.LastMessage.SenderName
	}
	return s
}

// project renders a room as seen by viewerId. Group rooms keep their
// stored name. Support rooms opened by a guest show the guest's name to
// members. A direct room between two accounts shows the counterpart's
// name and avatar. viewerId is zero for guests.
func project(ctx context.Context, st database.Store, viewerId int, l database.RoomListing) (types.RoomSummary, error) {
	s := baseSummary(l)
	if l.IsGroup {
		return s, nil
	}

	if l.IsSupportRoom && l.GuestFullName != "" {
		if viewerId != 0 {
			s.Name = l.GuestFullName
		}
		return s, nil
	}

	ids, err := st.ListMemberIds(ctx, l.Id)
	if err != nil {
		return types.RoomSummary{}, err
	}
	if len(ids) != 2 || (ids[0] != viewerId && ids[1] != viewerId) {
		return s, nil
	}

	for _, id := range ids {
		if id == viewerId {
			continue
		}
		other, err := st.GetUserById(ctx, id)
		if err != nil {
			return types.RoomSummary{}, err
		}
		s.Name = other.Username
		s.Avatar = other.Avatar
	}

	return s, nil
}

// summariesFor projects roomId for each viewer that is still a member.
func summariesFor(ctx context.Context, st database.Store, roomId int, viewerIds []int) (map[int]types.RoomSummary, error) {
	out := make(map[int]types.RoomSummary, len(viewerIds))
	for _, id := range viewerIds {
		l, err := st.GetRoomListing(ctx, id, roomId)
		if err != nil {
			return nil, err
		}
		s, err := project(ctx, st, id, l)
		if err != nil {
			return nil, err
		}
		out[id] = s
	}
	return out, nil
}
