package models

import "time"

type Group struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	CreatedBy     int64      `json:"created_by"`
	IsActive      bool       `json:"is_active"`
	LastMessage   *string    `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type GroupMember struct {
	GroupID     int64     `json:"group_id"`
	UserID      int64     `json:"user_id"`
	IsAdmin     bool      `json:"is_admin"`
	UnreadCount int       `json:"unread_count"`
	JoinedAt    time.Time `json:"joined_at"`
}

type GroupSummary struct {
	Group
	UnreadCount int  `json:"unread_count"`
	IsAdmin     bool `json:"is_admin"`
}

type GroupDetail struct {
	Group
	Members []GroupMember `json:"members"`
}

func (d *GroupDetail) Member(userID int64) *GroupMember {
	for i := range d.Members {
		if d.Members[i].UserID == userID {
			return &d.Members[i]
		}
	}
	return nil
}
