// Package model defines the data structures used throughout the application.
package model

import "time"

// GeneralChannel is the catch-all channel every user can opt into.
const GeneralChannel = "general"

// Notifications holds a user's email preferences.
//
// OwnChannel: mail me about questions posted to my field.
// GeneralChannel: mail me about questions posted to "general".
type Notifications struct {
	OwnChannel     bool `json:"own_channel"`
	GeneralChannel bool `json:"general_channel"`
}

// DefaultNotifications is applied when registration omits preferences.
func DefaultNotifications() Notifications {
	return Notifications{OwnChannel: true, GeneralChannel: false}
}

// User represents a registered account.
//
// Username and Email are stored lower-cased and never change after
// registration. Field (the user's channel) and Notifications are the only
// mutable attributes.
type User struct {
	ID            string        `json:"id"`
	Username      string        `json:"username"`
	Email         string        `json:"email"`
	PasswordHash  string        `json:"-"`
	Field         string        `json:"field"`
	Notifications Notifications `json:"notifications"`
	CreatedAt     time.Time     `json:"-"`
	UpdatedAt     time.Time     `json:"-"`
}

// NotificationsPatch is a partial update: nil fields are left untouched.
type NotificationsPatch struct {
	OwnChannel     *bool `json:"own_channel,omitempty"`
	GeneralChannel *bool `json:"general_channel,omitempty"`
}

// Apply merges the patch into n.
func (p NotificationsPatch) Apply(n Notifications) Notifications {
	if p.OwnChannel != nil {
		n.OwnChannel = *p.OwnChannel
	}
	if p.GeneralChannel != nil {
		n.GeneralChannel = *p.GeneralChannel
	}
	return n
}

// IsEmpty reports whether the patch changes nothing.
func (p NotificationsPatch) IsEmpty() bool {
	return p.OwnChannel == nil && p.GeneralChannel == nil
}
