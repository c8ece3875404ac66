package models

import (
	"time"
)

// Contact is a person in an owner's roster. PhoneNumber is stored as digits only.
type Contact struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OwnerID     string    `gorm:"type:varchar(128);index;not null" json:"owner_id"`
	FirstName   string    `gorm:"type:varchar(255)" json:"first_name"`
	LastName    string    `gorm:"type:varchar(255)" json:"last_name"`
	PhoneNumber string    `gorm:"type:varchar(32);not null" json:"phone_number"`
	PhotoURL    string    `gorm:"type:text" json:"photo_url,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Snapshot copies the fields a list embeds.
func (c Contact) Snapshot() ContactSnapshot {
	return ContactSnapshot{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		PhoneNumber: c.PhoneNumber,
		PhotoURL:    c.PhotoURL,
		CreatedAt:   c.CreatedAt.UTC(),
	}
}

// DisplayName is "First Last", trimmed when either part is missing.
func (c Contact) DisplayName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// ContactSnapshot is the point-in-time copy of a Contact embedded in a list.
// It is not kept in sync with the contact row; reconciliation refreshes it.
type ContactSnapshot struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	PhoneNumber string    `json:"phone_number"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Contact rebuilds a Contact from the snapshot; UpdatedAt is left zero.
func (s ContactSnapshot) Contact() Contact {
	return Contact{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		PhoneNumber: s.PhoneNumber,
		PhotoURL:    s.PhotoURL,
		CreatedAt:   s.CreatedAt,
	}
}

// ContactList is a named grouping of contact snapshots. At most one list per
// owner has IsSystemGenerated set; only the reconciliation engine writes it.
type ContactList struct {
	ID                string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OwnerID           string            `gorm:"type:varchar(128);index;not null" json:"owner_id"`
	Name              string            `gorm:"type:varchar(255);not null" json:"name"`
	Members           []ContactSnapshot `gorm:"type:text;serializer:json" json:"contacts"`
	IsSystemGenerated bool              `gorm:"index;default:false" json:"is_system_generated"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ContactList) TableName() string {
	return "contact_lists"
}

// MemberIDs returns member ids in stored order.
func (l ContactList) MemberIDs() []string {
	ids := make([]string, 0, len(l.Members))
	for _, m := range l.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// HasMember reports whether id is embedded in the list.
func (l ContactList) HasMember(id string) bool {
	for _, m := range l.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// SavedMessage is a reusable message body.
type SavedMessage struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OwnerID   string    `gorm:"type:varchar(128);index;not null" json:"owner_id"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SavedMessage) TableName() string {
	return "saved_messages"
}
