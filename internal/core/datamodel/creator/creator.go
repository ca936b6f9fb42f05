package creator

import "time"

// Creator mirrors the slice of the content store this service depends on:
// existence, approval and the vote tally. Profile fields (bio, gallery,
// category copy) are owned by the content CMS and not modelled here.
type Creator struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"column:name;not null"`
	Approved  bool      `json:"approved" gorm:"column:approved;default:false"`
	Active    bool      `json:"active" gorm:"column:active;default:true"`
	VoteCount int64     `json:"vote_count" gorm:"column:vote_count;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Creator) TableName() string {
	return "creators"
}

// Votable reports whether the creator may receive paid votes.
func (c *Creator) Votable() bool {
	return c.Active && c.Approved
}
