package client

import "time"

// SendRequest is the params object of the send method. Exactly one of Phone
// and GroupID addresses the recipient.
type SendRequest struct {
	Phone     string            `json:"phone,omitempty"`
	GroupID   string            `json:"group_id,omitempty"`
	Type      string            `json:"type"` // text, image, document, audio, video, location, sticker, contact
	Message   string            `json:"message,omitempty"`
	MediaData *MediaData        `json:"media_data,omitempty"`
	Location  *Location         `json:"location,omitempty"`
	Contact   *ContactCard      `json:"contact,omitempty"`
	Reply     *Reply            `json:"reply,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Recipient returns the phone or group the request is addressed to.
func (r *SendRequest) Recipient() string {
	if r.Phone != "" {
		return r.Phone
	}
	return r.GroupID
}

// MediaData is an attachment carried inline as base64.
type MediaData struct {
	Data      string `json:"data"` // base64
	MimeType  string `json:"mime_type"`
	Filename  string `json:"filename,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Location is a shared map pin.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ContactCard is a shared vCard.
type ContactCard struct {
	DisplayName string `json:"display_name"`
	VCard       string `json:"vcard"`
}

// Reply quotes the message a send answers.
type Reply struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
}

// ChatHistoryRequest selects messages of one chat, addressed by ChatID,
// Phone or GroupID in that order of precedence.
type ChatHistoryRequest struct {
	ChatID      string `json:"chat_id,omitempty"`
	Phone       string `json:"phone,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	SenderPhone string `json:"sender_phone,omitempty"`
	TextOnly    bool   `json:"text_only,omitempty"`
}

// RateLimitSettings is a partial update of the backend's anti-ban pacing.
// Nil fields are left unchanged.
type RateLimitSettings struct {
	Enabled               *bool    `json:"enabled,omitempty"`
	MinDelayMs            *int     `json:"min_delay_ms,omitempty"`
	MaxDelayMs            *int     `json:"max_delay_ms,omitempty"`
	TypingDelayMs         *int     `json:"typing_delay_ms,omitempty"`
	LinkExtraDelayMs      *int     `json:"link_extra_delay_ms,omitempty"`
	MaxMessagesPerMinute  *int     `json:"max_messages_per_minute,omitempty"`
	MaxMessagesPerHour    *int     `json:"max_messages_per_hour,omitempty"`
	MaxNewContactsPerDay  *int     `json:"max_new_contacts_per_day,omitempty"`
	SimulateTyping        *bool    `json:"simulate_typing,omitempty"`
	RandomizeDelays       *bool    `json:"randomize_delays,omitempty"`
	PauseOnLowResponse    *bool    `json:"pause_on_low_response,omitempty"`
	ResponseRateThreshold *float64 `json:"response_rate_threshold,omitempty"`
}

// Status is the result of the status method.
type Status struct {
	Connected  bool      `json:"connected"`
	HasSession bool      `json:"has_session"`
	Running    bool      `json:"running"`
	Pairing    bool      `json:"pairing"`
	DeviceID   string    `json:"device_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// QRCode is the result of the qr method.
type QRCode struct {
	HasQR     bool   `json:"has_qr"`
	Code      string `json:"code"`
	Filename  string `json:"filename,omitempty"`
	ImageData string `json:"image_data,omitempty"` // base64 PNG
}

// Media is the result of the media method.
type Media struct {
	Data     string `json:"data"` // base64
	MimeType string `json:"mime_type"`
}

// InviteLink is the result of group_invite_link and group_revoke_invite.
type InviteLink struct {
	GroupID    string `json:"group_id"`
	InviteLink string `json:"invite_link"`
	Revoked    bool   `json:"revoked,omitempty"`
}
