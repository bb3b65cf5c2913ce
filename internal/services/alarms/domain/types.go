// Package domain defines the types and interfaces for the alarms service
package domain

import (
	"fmt"
	"time"
)

// Alarm is the durable record describing a recipient to notify at a local
// time-of-day. Identity is the triple (CodeID, Email, LocalTime)
type Alarm struct {
	CodeID      string    `json:"code_id"`
	Email       string    `json:"email"`
	LocalTime   string    `json:"time"`     // verbatim HH:MM[:SS] as submitted
	UTCTime     string    `json:"utc_time"` // canonical HH:MM:SS, derived at ingest
	IsRecurring bool      `json:"is_recurring"`
	DaysOfWeek  string    `json:"days_of_week"` // comma list of Mon..Sun
	Timezone    string    `json:"timezone"`     // IANA name
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ID returns the canonical in-memory identity string
func (a Alarm) ID() string {
	return AlarmID(a.CodeID, a.Email, a.LocalTime)
}

// AlarmID builds the canonical identity string from the primary key triple
func AlarmID(codeID, email, localTime string) string {
	return fmt.Sprintf("alarm_%s_%s_%s", codeID, email, localTime)
}

// ScheduleRequest is the ingest payload for a new alarm
type ScheduleRequest struct {
	CodeID      string `json:"code_id" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Time        string `json:"time" validate:"required"`
	IsRecurring bool   `json:"is_recurring"`
	DaysOfWeek  string `json:"days_of_week"`
	Timezone    string `json:"timezone"`
}

// AlarmEvent is published on the alarm_events topic once per fire.
// EventID is unique per fire so consumers can dedupe replays
type AlarmEvent struct {
	EventID     string    `json:"event_id"`
	AlarmID     string    `json:"alarm_id"`
	CodeID      string    `json:"code_id"`
	Email       string    `json:"email"`
	LocalTime   string    `json:"local_time"`
	UTCTime     string    `json:"utc_time"`
	TriggeredAt time.Time `json:"triggered_at"`
	IsRecurring bool      `json:"is_recurring"`
	Timezone    string    `json:"timezone"`
}

// EmailRequest is published on the email_requests topic by the processor
type EmailRequest struct {
	ToEmail     string `json:"to_email"`
	CodeID      string `json:"code_id"`
	Description string `json:"description"`
	AlarmTime   string `json:"alarm_time"` // local string for display
	Timezone    string `json:"timezone"`
}

// IndexStats summarizes the in-memory time index for the debug surface.
// ApproxBytes is a coarse structural estimate, not a heap measurement
type IndexStats struct {
	TotalAlarms int     `json:"total_alarms"`
	Slots       int     `json:"slots"`
	PerHour     [24]int `json:"per_hour"`
	ApproxBytes int     `json:"approx_bytes"`
}

// SchedulerState is the lifecycle state of the tick worker
type SchedulerState int32

const (
	// StateIdle means constructed, tick worker not yet started
	StateIdle SchedulerState = iota
	// StateRunning means the tick worker is active
	StateRunning
	// StateStopped means the tick worker has joined
	StateStopped
)

// String renders the state for health payloads
func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
