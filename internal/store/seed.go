package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var seedCommitMessages = []string{
	"fix flaky retry backoff in gateway client",
	"add organization member listing",
	"tighten commit window validation",
	"refactor session refresh path",
	"bump request timeout defaults",
	"handle empty repository list",
	"add avatar fallback for unlinked authors",
	"clean up bucket rendering",
}

// SeedDemoActivity populates five days of work sessions for a user, two
// sessions per day with a few synthetic commit records each. It is a no-op
// when the user already has any time entry, so repeated startups do not
// multiply data.
func (s *Store) SeedDemoActivity(ctx context.Context, userID uint, repo string) error {
	var existing int64
	if err := s.db.WithContext(ctx).Model(&TimeEntry{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
		return fmt.Errorf("count time entries: %w", err)
	}
	if existing > 0 {
		return nil
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for dayOffset := 4; dayOffset >= 0; dayOffset-- {
		day := today.AddDate(0, 0, -dayOffset)
		sessions := [][2]time.Time{
			{day.Add(9 * time.Hour), day.Add(12 * time.Hour)},
			{day.Add(13 * time.Hour), day.Add(17 * time.Hour)},
		}
		for sessionIndex, span := range sessions {
			entry := TimeEntry{UserID: userID, TimeIn: span[0], TimeOut: span[1]}
			if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
				return fmt.Errorf("seed time entry: %w", err)
			}
			for commitIndex := range 2 {
				message := seedCommitMessages[(dayOffset*4+sessionIndex*2+commitIndex)%len(seedCommitMessages)]
				commit := Commit{
					UserID:       userID,
					TimeEntryID:  entry.ID,
					CommitHash:   uuid.NewString(),
					Message:      message,
					Repo:         repo,
					Branch:       "main",
					LinesAdded:   10 + dayOffset*7 + commitIndex*3,
					LinesRemoved: 2 + commitIndex,
					CreatedAt:    span[0].Add(time.Duration(commitIndex+1) * 30 * time.Minute),
				}
				if err := s.db.WithContext(ctx).Create(&commit).Error; err != nil {
					return fmt.Errorf("seed commit: %w", err)
				}
			}
		}
	}
	return nil
}
