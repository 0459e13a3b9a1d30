// Package opportunity defines the record shapes and collaborator contracts shared
// by the ingestion, scoring and alerting pipeline.
package opportunity

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a record, subscriber or scan run is missing.
var ErrNotFound = errors.New("not found")

// DefaultCategory is assigned when no category pattern group wins.
const DefaultCategory = "residential"

// DefaultStatus is used for candidates whose source does not report a status.
const DefaultStatus = "Open"

// Candidate is a normalized listing produced by a connector during one scan.
type Candidate struct {
	SourceID      string          `json:"source_id"`
	ExternalID    string          `json:"external_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Location      string          `json:"location,omitempty"`
	Address       string          `json:"address,omitempty"`
	Latitude      *float64        `json:"latitude,omitempty"`
	Longitude     *float64        `json:"longitude,omitempty"`
	Value         *float64        `json:"value,omitempty"`
	Category      string          `json:"category,omitempty"`
	BaselineScore int             `json:"baseline_score"`
	Status        string          `json:"status,omitempty"`
	PostedDate    *time.Time      `json:"posted_date,omitempty"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
	Agency        string          `json:"agency,omitempty"`
	Solicitation  string          `json:"solicitation_number,omitempty"`
	NAICSCodes    []string        `json:"naics_codes,omitempty"`
	Contractor    string          `json:"contractor,omitempty"`
	SourceURL     string          `json:"source_url,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// Key returns the natural key of the candidate.
func (c Candidate) Key() Key {
	return Key{SourceID: c.SourceID, ExternalID: c.ExternalID}
}

// Key identifies one real-world listing across repeated scans.
type Key struct {
	SourceID   string
	ExternalID string
}

// Record is the persisted form of a candidate.
type Record struct {
	ID string `json:"id"`
	Candidate
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	IsActive  bool      `json:"is_active"`
}

// AsCandidate rebuilds the candidate view of a stored record.
func (r Record) AsCandidate() Candidate {
	return r.Candidate
}

// Criteria holds the optional matching rules of a subscriber. A nil or empty
// field is not configured and is ignored by the profile scorer.
type Criteria struct {
	MinValue   *float64 `json:"min_value,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Statuses   []string `json:"statuses,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

// Subscriber is an operator or customer profile that receives alerts.
type Subscriber struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Criteria       Criteria `json:"criteria"`
	MinNotifyScore int      `json:"min_notify_score"`
	EmailEnabled   bool     `json:"email_enabled"`
	Email          string   `json:"email,omitempty"`
	SMSEnabled     bool     `json:"sms_enabled"`
	Phone          string   `json:"phone,omitempty"`
}

// Channels returns the delivery channels the subscriber has enabled and can be reached on.
func (s Subscriber) Channels() []Channel {
	var out []Channel
	if s.EmailEnabled && s.Email != "" {
		out = append(out, ChannelEmail)
	}
	if s.SMSEnabled && s.Phone != "" {
		out = append(out, ChannelSMS)
	}
	return out
}

// Recipient returns the address used for the given channel.
func (s Subscriber) Recipient(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return s.Email
	case ChannelSMS:
		return s.Phone
	default:
		return ""
	}
}

// Channel names a delivery path for alerts.
type Channel string

const (
	// ChannelEmail delivers alerts by email.
	ChannelEmail Channel = "email"
	// ChannelSMS delivers alerts by text message.
	ChannelSMS Channel = "sms"
)

// RunStatus is the lifecycle state of a ScanRun.
type RunStatus string

const (
	// RunRunning marks a scan run that has started but not finished.
	RunRunning RunStatus = "running"
	// RunSuccess marks a scan run whose source was fetched and upserted.
	RunSuccess RunStatus = "success"
	// RunError marks a scan run that failed.
	RunError RunStatus = "error"
)

// ScanRun is the audit record of one source invocation.
type ScanRun struct {
	ID           string     `json:"id"`
	SourceID     string     `json:"source_id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	Found        int        `json:"found"`
	New          int        `json:"new"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ArchiveURI   string     `json:"archive_uri,omitempty"`
}

// AlertReceipt records that a subscriber was notified about a record on a channel.
type AlertReceipt struct {
	SubscriberID string    `json:"subscriber_id"`
	RecordID     string    `json:"record_id"`
	Channel      Channel   `json:"channel"`
	SentAt       time.Time `json:"sent_at"`
}

// RecordFilter narrows catalog reads. Zero values disable a filter.
type RecordFilter struct {
	ActiveOnly bool
	Categories []string
	Sources    []string
	MinValue   *float64
	Status     string
	Search     string
}
