package db

import (
	"fmt"
	"time"
)

// Intent is a user's declared relationship goal. Candidates only ever share
// the viewer's intent.
type Intent string

const (
	IntentLifePartner   Intent = "life_partner"
	IntentSeriousDating Intent = "serious_dating"
	IntentCompanionship Intent = "companionship"
	IntentExploring     Intent = "exploring"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentLifePartner, IntentSeriousDating, IntentCompanionship, IntentExploring:
		return true
	}
	return false
}

// Profile table. Owned by its subject; read-only for this service.
type Profile struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	FullName  string    `gorm:"size:128;not null" json:"full_name"`
	BirthDate time.Time `gorm:"type:date" json:"birth_date"`
	Intent    Intent    `gorm:"size:32;not null;index:idx_profiles_intent_id,priority:1" json:"intent"`
	Values    []string  `gorm:"serializer:json" json:"values"`
	Bio       string    `gorm:"size:1024" json:"bio,omitempty"`
	AvatarURL string    `gorm:"size:512" json:"avatar_url,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// DiscoveryRecord is the append-only fact "viewer was shown viewed on day".
//
// Composite PK: (UserID, DiscoveredUserID)
//   - A pair is recorded at most once, whatever the day.
//
// Indexes:
//   - idx_discovery_user_day(user_id, discovered_at)
//     Counts today's records for the quota.
type DiscoveryRecord struct {
	UserID           uint64 `gorm:"primaryKey;autoIncrement:false;index:idx_discovery_user_day,priority:1"`
	DiscoveredUserID uint64 `gorm:"primaryKey;autoIncrement:false"`
	// DiscoveredAt is the calendar day (YYYY-MM-DD) in the quota time zone.
	DiscoveredAt string    `gorm:"size:10;not null;index:idx_discovery_user_day,priority:2"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (DiscoveryRecord) TableName() string { return "discovery_history" }

// DiscoveryQuota counts claimed slots per viewer and day. It is only written in
// the same transaction as a DiscoveryRecord, so Used matches the record count.
type DiscoveryQuota struct {
	UserID uint64 `gorm:"primaryKey;autoIncrement:false"`
	Day    string `gorm:"primaryKey;size:10"`
	Used   int    `gorm:"not null;default:0"`
}

func (DiscoveryQuota) TableName() string { return "discovery_quota" }

type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchAccepted MatchStatus = "accepted"
)

// Match records a like and, once reciprocated, the mutual connection.
//
// User1 is the first liker, not the smaller id: callers must check both
// columns (see Involves / Other).
//
// Indexes:
//   - uniq_matches_pair(pair_key) makes the unordered pair unique; the insert
//     conflicting on it is how a reciprocal like is detected.
//   - idx_matches_user1_status / idx_matches_user2_status serve "my matches".
type Match struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	User1      uint64      `gorm:"column:user_1;not null;index:idx_matches_user1_status,priority:1" json:"user_1"`
	User2      uint64      `gorm:"column:user_2;not null;index:idx_matches_user2_status,priority:1" json:"user_2"`
	PairKey    string      `gorm:"size:64;not null;uniqueIndex:uniq_matches_pair" json:"-"`
	Status     MatchStatus `gorm:"size:16;not null;index:idx_matches_user1_status,priority:2;index:idx_matches_user2_status,priority:2" json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	AcceptedAt *time.Time  `json:"accepted_at,omitempty"`
}

// PairKey is the order-independent key of {a, b}.
func PairKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func (m Match) Involves(userID uint64) bool {
	return m.User1 == userID || m.User2 == userID
}

// Other returns the participant that is not userID.
func (m Match) Other(userID uint64) uint64 {
	if m.User1 == userID {
		return m.User2
	}
	return m.User1
}

func (m Match) Accepted() bool { return m.Status == MatchAccepted }

// Message is immutable except for the single ReadAt transition.
//
// Indexes:
//   - idx_messages_match_created_id(match_id, created_at, id)
//     Canonical conversation order.
type Message struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement;index:idx_messages_match_created_id,priority:3" json:"id"`
	MatchID   uint64     `gorm:"not null;index:idx_messages_match_created_id,priority:1" json:"match_id"`
	SenderID  uint64     `gorm:"not null" json:"sender_id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time  `gorm:"index:idx_messages_match_created_id,priority:2" json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// Before reports whether m sorts before o in conversation order.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&Profile{}, &DiscoveryRecord{}, &DiscoveryQuota{}, &Match{}, &Message{}}
}
