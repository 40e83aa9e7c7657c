package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User ids are opaque uids issued by the identity provider; a uuid is only
// minted when none is supplied.
type User struct {
	ID             string    `gorm:"size:128;primaryKey" json:"id"`
	Handle         string    `gorm:"size:50;uniqueIndex;not null" json:"handle"`
	AvatarPublicID *string   `gorm:"size:255" json:"avatar_public_id,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	Profile        *Profile  `gorm:"constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type Profile struct {
	UserID      string    `gorm:"size:128;primaryKey" json:"user_id"`
	FirstName   string    `gorm:"size:100" json:"first_name"`
	LastName    string    `gorm:"size:100" json:"last_name"`
	DisplayName string    `gorm:"size:100;not null" json:"display_name"`
	Bio         *string   `gorm:"type:text" json:"bio,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FullName joins first and last name, falling back to the display name.
func (p *Profile) FullName() string {
	if p == nil {
		return ""
	}
	full := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if full == "" {
		return p.DisplayName
	}
	return full
}
