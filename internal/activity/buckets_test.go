package activity

import (
	"testing"
	"time"
)

func entryAt(start, end time.Time, commits ...Commit) Entry {
	return Entry{Start: start, End: end, Commits: commits}
}

func TestBucketGroupsEntriesByCalendarDay(t *testing.T) {
	t.Parallel()

	monday := time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC)
	tuesday := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt(monday, monday.Add(3*time.Hour)),
		entryAt(monday.Add(4*time.Hour), monday.Add(8*time.Hour)),
		entryAt(tuesday, tuesday.Add(3*time.Hour)),
	}

	buckets := Bucket(entries)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Day != "2026-03-09" || buckets[1].Day != "2026-03-10" {
		t.Fatalf("unexpected day keys: %s, %s", buckets[0].Day, buckets[1].Day)
	}
	if len(buckets[0].Activities) != 2 {
		t.Fatalf("expected both monday sessions in one bucket, got %d", len(buckets[0].Activities))
	}
	if len(buckets[1].Activities) != 1 {
		t.Fatalf("expected single tuesday session, got %d", len(buckets[1].Activities))
	}
}

func TestBucketPreservesFirstEncounterOrder(t *testing.T) {
	t.Parallel()

	days := []time.Time{
		time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC),
	}
	entries := make([]Entry, 0, len(days))
	for _, day := range days {
		entries = append(entries, entryAt(day, day.Add(2*time.Hour)))
	}

	buckets := Bucket(entries)
	want := []string{"2026-03-09", "2026-03-10", "2026-03-11"}
	if len(buckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(buckets))
	}
	for i, key := range want {
		if buckets[i].Day != key {
			t.Fatalf("position %d: expected %s, got %s", i, key, buckets[i].Day)
		}
	}
}

func TestBucketAttachesCommitsWithDeepLinks(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt(start, start.Add(3*time.Hour), Commit{
			Hash:         "abc123",
			Message:      "fix pagination",
			Repository:   "acme/api",
			AuthoredAt:   start.Add(time.Hour),
			LinesAdded:   12,
			LinesRemoved: 4,
		}),
	}

	buckets := Bucket(entries)
	if len(buckets) != 1 || len(buckets[0].Commits) != 1 {
		t.Fatalf("expected one bucket with one commit, got %+v", buckets)
	}
	commit := buckets[0].Commits[0]
	if commit.URL != "https://github.com/acme/api/commit/abc123" {
		t.Fatalf("unexpected commit link: %s", commit.URL)
	}
	if commit.LinesAdded != 12 || commit.LinesRemoved != 4 {
		t.Fatalf("unexpected line counts: %+v", commit)
	}
}

func TestBucketEntriesWithoutCommitsYieldEmptyCommitList(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC)
	buckets := Bucket([]Entry{entryAt(start, start.Add(time.Hour))})
	if len(buckets) != 1 {
		t.Fatalf("expected one bucket, got %d", len(buckets))
	}
	if buckets[0].Commits == nil || len(buckets[0].Commits) != 0 {
		t.Fatalf("expected empty non-nil commit list, got %+v", buckets[0].Commits)
	}
}

func TestBucketNoEntriesNoBuckets(t *testing.T) {
	t.Parallel()

	if buckets := Bucket(nil); len(buckets) != 0 {
		t.Fatalf("expected no buckets, got %+v", buckets)
	}
}

func TestDayKeyNormalizesToUTC(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("UTC+5", 5*60*60)
	// 02:00 on March 10 in UTC+5 is still March 9 in UTC.
	at := time.Date(2026, time.March, 10, 2, 0, 0, 0, zone)
	if got := DayKey(at); got != "2026-03-09" {
		t.Fatalf("expected UTC day key 2026-03-09, got %s", got)
	}
}
