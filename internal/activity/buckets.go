package activity

import (
	"fmt"
	"time"
)

// dayKeyLayout is the ISO calendar date used to key buckets. A weekday
// abbreviation would collide across weeks, so buckets are always keyed by
// the full date in UTC.
const dayKeyLayout = "2006-01-02"

// Entry is one recorded work session with the commits attributed to it.
type Entry struct {
	Start   time.Time
	End     time.Time
	Commits []Commit
}

// Commit is a persisted commit record attributed to a work session.
type Commit struct {
	Hash         string
	Message      string
	Repository   string
	AuthoredAt   time.Time
	LinesAdded   int
	LinesRemoved int
}

// Span is one activity interval inside a day bucket.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CommitView is the commit projection rendered inside a day bucket,
// including a deep link to the commit on github.com.
type CommitView struct {
	Time         time.Time `json:"time"`
	Message      string    `json:"message"`
	URL          string    `json:"url"`
	LinesAdded   int       `json:"linesAdded"`
	LinesRemoved int       `json:"linesRemoved"`
}

// DayBucket groups one calendar day's work sessions and commits.
type DayBucket struct {
	Day        string       `json:"day"`
	Activities []Span       `json:"activities"`
	Commits    []CommitView `json:"commits"`
}

// DayKey returns the UTC calendar-date key for a timestamp.
func DayKey(at time.Time) string {
	return at.UTC().Format(dayKeyLayout)
}

// Bucket groups work sessions into one bucket per distinct calendar day,
// keyed by each session's start time. Output order follows first encounter
// of a day key, so chronologically sorted input yields chronological
// buckets. Days with commits but no session produce no bucket.
func Bucket(entries []Entry) []DayBucket {
	buckets := make([]DayBucket, 0, len(entries))
	byDay := make(map[string]int, len(entries))

	for _, entry := range entries {
		key := DayKey(entry.Start)
		index, ok := byDay[key]
		if !ok {
			index = len(buckets)
			byDay[key] = index
			buckets = append(buckets, DayBucket{
				Day:        key,
				Activities: []Span{},
				Commits:    []CommitView{},
			})
		}
		buckets[index].Activities = append(buckets[index].Activities, Span{
			Start: entry.Start,
			End:   entry.End,
		})
		for _, commit := range entry.Commits {
			buckets[index].Commits = append(buckets[index].Commits, CommitView{
				Time:         commit.AuthoredAt,
				Message:      commit.Message,
				URL:          commitURL(commit.Repository, commit.Hash),
				LinesAdded:   commit.LinesAdded,
				LinesRemoved: commit.LinesRemoved,
			})
		}
	}
	return buckets
}

func commitURL(repository, hash string) string {
	return fmt.Sprintf("https://github.com/%s/commit/%s", repository, hash)
}
