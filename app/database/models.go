package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// StringList stores a slice of strings as a JSON array.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringList) Scan(value any) error {
	return scanJSON(value, s)
}

// MergeEvent is one entry of a guest's merge audit trail.
type MergeEvent struct {
	MergedAt          time.Time        `json:"merged_at"`
	Action            string           `json:"action"`
	OtherGuestID      int64            `json:"other_guest_id"`
	FieldsTransferred []string         `json:"fields_transferred,omitempty"`
	RepointedRows     map[string]int64 `json:"repointed_rows,omitempty"`
}

const (
	MergeActionMergedInto = "merged_into"
	MergeActionAbsorbed   = "absorbed"
)

type MergeHistory []MergeEvent

func (h MergeHistory) Value() (driver.Value, error) {
	if len(h) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]MergeEvent(h))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (h *MergeHistory) Scan(value any) error {
	return scanJSON(value, h)
}

func scanJSON(value any, dst any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// Guest is a global identity record. Merged guests are soft-deleted duplicates.
type Guest struct {
	bun.BaseModel `bun:"table:guests,alias:g"`

	ID              int64  `bun:"id,pk,autoincrement" json:"id"`
	CreatedByUserID int64  `bun:"created_by_user_id,notnull" json:"created_by_user_id"`
	ClaimedByUserID *int64 `bun:"claimed_by_user_id" json:"claimed_by_user_id,omitempty"`

	FullName        string `bun:"full_name,notnull" json:"full_name"`
	FirstName       string `bun:"first_name,notnull" json:"first_name"`
	LastName        string `bun:"last_name,notnull" json:"last_name"`
	Email           string `bun:"email,notnull" json:"email,omitempty"`
	EmailHash       string `bun:"email_hash,notnull" json:"-"`
	Phone           string `bun:"phone,notnull" json:"phone,omitempty"`
	LinkedInURL     string `bun:"linkedin_url,notnull" json:"linkedin_url,omitempty"`
	LinkedInURLHash string `bun:"linkedin_url_hash,notnull" json:"-"`
	TwitterHandle   string `bun:"twitter_handle,notnull" json:"twitter_handle,omitempty"`
	InstagramHandle string `bun:"instagram_handle,notnull" json:"instagram_handle,omitempty"`
	YouTubeChannel  string `bun:"youtube_channel,notnull" json:"youtube_channel,omitempty"`
	WebsiteURL      string `bun:"website_url,notnull" json:"website_url,omitempty"`
	HeadshotURL     string `bun:"headshot_url,notnull" json:"headshot_url,omitempty"`
	CurrentCompany  string `bun:"current_company,notnull" json:"current_company,omitempty"`
	CurrentRole     string `bun:"current_role,notnull" json:"current_role,omitempty"`
	Industry        string `bun:"industry,notnull" json:"industry,omitempty"`
	Bio             string `bun:"bio,notnull" json:"bio,omitempty"`
	City            string `bun:"city,notnull" json:"city,omitempty"`
	StateRegion     string `bun:"state_region,notnull" json:"state_region,omitempty"`
	Country         string `bun:"country,notnull" json:"country,omitempty"`

	ExpertiseAreas StringList `bun:"expertise_areas,notnull" json:"expertise_areas"`
	PastCompanies  StringList `bun:"past_companies,notnull" json:"past_companies"`
	Education      StringList `bun:"education,notnull" json:"education"`
	Achievements   StringList `bun:"achievements,notnull" json:"achievements"`

	LinkedInConnections int64 `bun:"linkedin_connections,notnull" json:"linkedin_connections"`
	TwitterFollowers    int64 `bun:"twitter_followers,notnull" json:"twitter_followers"`
	InstagramFollowers  int64 `bun:"instagram_followers,notnull" json:"instagram_followers"`
	YouTubeSubscribers  int64 `bun:"youtube_subscribers,notnull" json:"youtube_subscribers"`

	DataQualityScore  int  `bun:"data_quality_score,notnull" json:"data_quality_score"`
	VerificationScore int  `bun:"verification_score,notnull" json:"verification_score"`
	IsVerified        bool `bun:"is_verified,notnull" json:"is_verified"`

	EnrichedAt         *time.Time `bun:"enriched_at" json:"enriched_at,omitempty"`
	EnrichmentProvider string     `bun:"enrichment_provider,notnull" json:"enrichment_provider,omitempty"`
	EnrichmentLevel    string     `bun:"enrichment_level,notnull" json:"enrichment_level,omitempty"`

	IsMerged          bool         `bun:"is_merged,notnull" json:"is_merged"`
	MergedIntoGuestID *int64       `bun:"merged_into_guest_id" json:"merged_into_guest_id,omitempty"`
	MergeHistory      MergeHistory `bun:"merge_history,notnull" json:"merge_history,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type ClaimStatus string

const (
	ClaimPending      ClaimStatus = "pending"
	ClaimApproved     ClaimStatus = "approved"
	ClaimRejected     ClaimStatus = "rejected"
	ClaimAutoApproved ClaimStatus = "auto_approved"
)

type ClaimRequest struct {
	bun.BaseModel `bun:"table:claim_requests,alias:cr"`

	ID                 int64       `bun:"id,pk,autoincrement" json:"id"`
	GuestID            int64       `bun:"guest_id,notnull" json:"guest_id"`
	UserID             int64       `bun:"user_id,notnull" json:"user_id"`
	Status             ClaimStatus `bun:"status,notnull" json:"status"`
	VerificationMethod string      `bun:"verification_method,notnull" json:"verification_method"`
	VerificationToken  string      `bun:"verification_token,notnull" json:"-"`
	ReviewedByUserID   *int64      `bun:"reviewed_by_user_id" json:"reviewed_by_user_id,omitempty"`
	ReviewNotes        string      `bun:"review_notes,notnull" json:"review_notes,omitempty"`
	CreatedAt          time.Time   `bun:"created_at,notnull" json:"created_at"`
	ReviewedAt         *time.Time  `bun:"reviewed_at" json:"reviewed_at,omitempty"`
}

type GuestNote struct {
	bun.BaseModel `bun:"table:guest_notes,alias:gn"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	GuestID   int64     `bun:"guest_id,notnull" json:"guest_id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	Body      string    `bun:"body,notnull" json:"body"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type StatusChange struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
	Note      string    `json:"note,omitempty"`
}

type StatusHistory []StatusChange

func (h StatusHistory) Value() (driver.Value, error) {
	if len(h) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]StatusChange(h))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (h *StatusHistory) Scan(value any) error {
	return scanJSON(value, h)
}

// Opportunity is a user-owned pipeline record linking a guest to a podcast.
type Opportunity struct {
	bun.BaseModel `bun:"table:opportunities,alias:o"`

	ID            int64         `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64         `bun:"user_id,notnull" json:"user_id"`
	GuestID       int64         `bun:"guest_id,notnull" json:"guest_id"`
	PodcastID     *int64        `bun:"podcast_id" json:"podcast_id,omitempty"`
	Status        string        `bun:"status,notnull" json:"status"`
	Priority      string        `bun:"priority,notnull" json:"priority"`
	Notes         string        `bun:"notes,notnull" json:"notes,omitempty"`
	StatusHistory StatusHistory `bun:"status_history,notnull" json:"status_history"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

type Appearance struct {
	bun.BaseModel `bun:"table:appearances,alias:a"`

	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64      `bun:"user_id,notnull" json:"user_id"`
	GuestID       int64      `bun:"guest_id,notnull" json:"guest_id"`
	PodcastID     *int64     `bun:"podcast_id" json:"podcast_id,omitempty"`
	OpportunityID *int64     `bun:"opportunity_id" json:"opportunity_id,omitempty"`
	EpisodeTitle  string     `bun:"episode_title,notnull" json:"episode_title"`
	InterviewAt   *time.Time `bun:"interview_at" json:"interview_at,omitempty"`
	AiredAt       *time.Time `bun:"aired_at" json:"aired_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

type AppearanceTask struct {
	bun.BaseModel `bun:"table:appearance_tasks,alias:t"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	AppearanceID int64      `bun:"appearance_id,notnull" json:"appearance_id"`
	UserID       int64      `bun:"user_id,notnull" json:"user_id"`
	Title        string     `bun:"title,notnull" json:"title"`
	DueAt        *time.Time `bun:"due_at" json:"due_at,omitempty"`
	ReminderAt   *time.Time `bun:"reminder_at" json:"reminder_at,omitempty"`
	IsDone       bool       `bun:"is_done,notnull" json:"is_done"`
	CreatedAt    time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

type NotificationType string

const (
	NotificationTaskReminder  NotificationType = "task_reminder"
	NotificationTaskOverdue   NotificationType = "task_overdue"
	NotificationInterviewSoon NotificationType = "interview_soon"
)

const (
	SourceAppearanceTask = "appearance_task"
	SourceAppearance     = "appearance"
)

type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID          int64            `bun:"id,pk,autoincrement" json:"id"`
	UserID      int64            `bun:"user_id,notnull" json:"user_id"`
	Type        NotificationType `bun:"type,notnull" json:"type"`
	Source      string           `bun:"source,notnull" json:"source"`
	SourceID    int64            `bun:"source_id,notnull" json:"source_id"`
	Title       string           `bun:"title,notnull" json:"title"`
	Message     string           `bun:"message,notnull" json:"message"`
	IsRead      bool             `bun:"is_read,notnull" json:"is_read"`
	EmailSentAt *time.Time       `bun:"email_sent_at" json:"email_sent_at,omitempty"`
	PushSentAt  *time.Time       `bun:"push_sent_at" json:"push_sent_at,omitempty"`
	CreatedAt   time.Time        `bun:"created_at,notnull" json:"created_at"`
}

type NotificationPreference struct {
	bun.BaseModel `bun:"table:notification_preferences,alias:np"`

	UserID       int64     `bun:"user_id,pk" json:"user_id"`
	Email        string    `bun:"email,notnull" json:"email"`
	EmailEnabled bool      `bun:"email_enabled,notnull" json:"email_enabled"`
	PushEnabled  bool      `bun:"push_enabled,notnull" json:"push_enabled"`
	UpdatedAt    time.Time `bun:"updated_at,notnull" json:"updated_at"`
}
