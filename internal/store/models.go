package store

import "time"

// User roles.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is an authenticated dashboard user. Organization is the active
// organization selected for the dashboard, nullable until sign-in resolves
// one. Organizations is the full membership set reported by the identity
// provider, refreshed on every sign-in.
type User struct {
	ID             uint   `gorm:"primaryKey"`
	Login          string `gorm:"uniqueIndex"`
	Name           string
	Email          string `gorm:"index"`
	Role           string
	AvatarURL      string
	OrganizationID *uint
	Organization   *Organization   `gorm:"foreignKey:OrganizationID"`
	Organizations  []*Organization `gorm:"many2many:user_organizations"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Organization is a source-control organization a user can select as
// active.
type Organization struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
}

// TimeEntry is one recorded work session. TimeOut is always after TimeIn.
type TimeEntry struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index"`
	TimeIn    time.Time `gorm:"index"`
	TimeOut   time.Time
	Commits   []Commit `gorm:"foreignKey:TimeEntryID"`
	CreatedAt time.Time
}

// Commit is a persisted commit record attributed to a work session.
type Commit struct {
	ID           uint `gorm:"primaryKey"`
	UserID       uint `gorm:"index"`
	TimeEntryID  uint `gorm:"index"`
	CommitHash   string
	Message      string
	Repo         string
	Branch       string
	LinesAdded   int
	LinesRemoved int
	CreatedAt    time.Time
}
