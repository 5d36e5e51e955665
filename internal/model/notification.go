package model

import "time"

type NotificationChannel string

const (
	ChannelSMS   NotificationChannel = "sms"
	ChannelEmail NotificationChannel = "email"
)

// SendResult is what a transport reports back.
type SendResult struct {
	Success   bool                `json:"success"`
	Channel   NotificationChannel `json:"channel"`
	MessageID string              `json:"messageId,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// BroadcastResult summarizes an announcement to waiting patients.
type BroadcastResult struct {
	Recipients int `json:"recipients"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}
