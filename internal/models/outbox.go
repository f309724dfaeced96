package models

import "time"

// OutboxEntry is a pending event publish, committed in the same transaction
// as the state change that produced it. The relay publishes entries in
// order and marks them; a broker outage delays delivery instead of losing
// the event.
type OutboxEntry struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	RoutingKey  string     `gorm:"type:varchar(64);not null" json:"routing_key"`
	Body        []byte     `gorm:"type:bytea;not null" json:"-"`
	Attempts    int        `json:"attempts"`
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (OutboxEntry) TableName() string {
	return "outbox_entries"
}

// DeadLetter archives a message that exhausted its consumer retries. The
// replay command republishes unreplayed rows to their original routing key.
type DeadLetter struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Queue      string     `gorm:"type:varchar(64)" json:"queue"`
	RoutingKey string     `gorm:"type:varchar(64)" json:"routing_key"`
	Body       []byte     `gorm:"type:bytea" json:"-"`
	Reason     string     `gorm:"type:text" json:"reason"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"created_at"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
}

func (DeadLetter) TableName() string {
	return "dead_letters"
}
