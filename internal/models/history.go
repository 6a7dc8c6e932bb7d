package models

import (
	"time"

	"gorm.io/gorm"
)

// CommandHistory is a single command executed in a shell session. Rows are
// written synchronously as each command finishes so the history command can
// show them back, and pruned on startup once they pass the configured
// retention period.
type CommandHistory struct {
	ID int `gorm:"primaryKey;not null" json:"-"`
	// Session is the UUID of the shell session this command was executed in.
	// Every session gets a fresh UUID when it starts, the history command only
	// shows rows matching the current one.
	Session string `gorm:"type:uuid;not null;index" json:"session"`
	// Command is the canonical name of the command that was executed, with any
	// alias the user typed already resolved.
	Command string `gorm:"not null;index" json:"command"`
	// Arguments is the raw argument string exactly as the user entered it.
	Arguments string `gorm:"not null" json:"arguments"`
	// Error holds the error code for a command that failed, and is null for
	// commands that completed successfully.
	Error     JsonNullString `json:"error"`
	Timestamp time.Time      `gorm:"not null" json:"timestamp"`
}

func (CommandHistory) TableName() string {
	return "command_history"
}

// SetError sets the error code recorded with the entry. An empty string is
// cast into a null value when stored, which is how successful commands are
// told apart from failed ones.
func (h CommandHistory) SetError(code string) *CommandHistory {
	var ns JsonNullString
	if code == "" {
		if err := ns.Scan(nil); err != nil {
			panic(err)
		}
	} else {
		if err := ns.Scan(code); err != nil {
			panic(err)
		}
	}
	h.Error = ns
	return &h
}

// Outcome returns the stored error code, or "ok" when the command completed
// without one.
func (h *CommandHistory) Outcome() string {
	if h.Error.Valid && h.Error.String != "" {
		return h.Error.String
	}
	return "ok"
}

// BeforeCreate executes before the entry is written to ensure a timestamp is
// always present and stored as UTC.
func (h *CommandHistory) BeforeCreate(_ *gorm.DB) error {
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}
	h.Timestamp = h.Timestamp.UTC()
	return nil
}
