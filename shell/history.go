package shell

import (
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/burrowsh/burrow/internal/database"
	"github.com/burrowsh/burrow/internal/models"
)

// History records the commands a session executes into the local database and
// reads them back out for the history command.
type History struct {
	session string
}

// NewHistory returns a recorder scoped to the given session identifier.
func NewHistory(sessionID string) *History {
	return &History{session: sessionID}
}

// Save writes a row for a single executed command. Failures are logged rather
// than returned, a lost history row is never worth interrupting the session
// over.
func (h *History) Save(command string, arguments string, execErr error) {
	entry := models.CommandHistory{
		Session:   h.session,
		Command:   command,
		Arguments: arguments,
	}
	if tx := database.Instance().Create(entry.SetError(errorCode(execErr))); tx.Error != nil {
		log.WithField("command", command).WithField("error", errors.WithStack(tx.Error)).Error("history: failed to save entry")
	}
}

// Recent returns up to n of the most recent commands recorded for this
// session, oldest first so they read top to bottom the way they were typed.
func (h *History) Recent(n int) ([]models.CommandHistory, error) {
	var rows []models.CommandHistory
	tx := database.Instance().
		Where("session = ?", h.session).
		Order("id desc").
		Limit(n).
		Find(&rows)
	if tx.Error != nil {
		return nil, errors.WithStack(tx.Error)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// RecentLines reconstructs the input lines of the most recent commands across
// every recorded session, oldest first. The interactive prompt seeds its line
// recall with these so the up arrow reaches lines typed in earlier runs.
// Failures are logged and return an empty seed, recall then only covers the
// current run.
func RecentLines(n int) []string {
	var rows []models.CommandHistory
	tx := database.Instance().Order("id desc").Limit(n).Find(&rows)
	if tx.Error != nil {
		log.WithField("error", errors.WithStack(tx.Error)).Warn("history: failed to load recall lines")
		return nil
	}
	lines := make([]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		line := rows[i].Command
		if rows[i].Arguments != "" {
			line += " " + rows[i].Arguments
		}
		lines = append(lines, line)
	}
	return lines
}

// PruneHistory removes rows older than the given retention period across all
// sessions and reports how many were dropped. This runs once while the shell
// is booting, there is no value in churning the database during a session.
func PruneHistory(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	tx := database.Instance().Where("timestamp < ?", cutoff).Delete(&models.CommandHistory{})
	if tx.Error != nil {
		return 0, errors.WithStack(tx.Error)
	}
	return tx.RowsAffected, nil
}
