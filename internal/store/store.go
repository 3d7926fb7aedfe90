package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: record not found")

// Store wraps the relational database holding users, organizations, work
// sessions, and their commit records.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL, optionally running migrations on startup.
func Open(dsn string, migrate bool) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if migrate {
		return NewWithDB(db)
	}
	return &Store{db: db}, nil
}

// NewWithDB builds a store around an existing gorm handle and runs
// migrations. Used directly by tests with an in-memory database.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Organization{}, &User{}, &TimeEntry{}, &Commit{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// UpsertUserOnSignIn creates or refreshes the user row for an identity
// provider sign-in. Organizations the user belongs to are recorded, and
// the first one becomes the active organization unless the user already
// selected one.
func (s *Store) UpsertUserOnSignIn(ctx context.Context, login, name, email, avatarURL string, organizations []string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		memberOrgs := make([]*Organization, 0, len(organizations))
		for _, orgName := range organizations {
			var org Organization
			if err := tx.Where(Organization{Name: orgName}).FirstOrCreate(&org).Error; err != nil {
				return fmt.Errorf("upsert organization %q: %w", orgName, err)
			}
			memberOrgs = append(memberOrgs, &org)
		}

		err := tx.Where(User{Login: login}).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = User{Login: login, Role: RoleUser}
		case err != nil:
			return fmt.Errorf("load user %q: %w", login, err)
		}

		user.Name = name
		user.Email = email
		user.AvatarURL = avatarURL
		if user.OrganizationID == nil && len(memberOrgs) > 0 {
			user.OrganizationID = &memberOrgs[0].ID
		}
		if err := tx.Save(&user).Error; err != nil {
			return fmt.Errorf("save user %q: %w", login, err)
		}
		if err := tx.Model(&user).Association("Organizations").Replace(memberOrgs); err != nil {
			return fmt.Errorf("record memberships for %q: %w", login, err)
		}
		return tx.Preload("Organization").First(&user, user.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser loads one user with its active organization.
func (s *Store) GetUser(ctx context.Context, id uint) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Preload("Organization").First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

// ListUserOrganizations returns the organizations the user is a member
// of, ordered by name. Organizations the user does not belong to are
// never returned.
func (s *Store) ListUserOrganizations(ctx context.Context, userID uint) ([]Organization, error) {
	var orgs []Organization
	err := s.db.WithContext(ctx).
		Joins("JOIN user_organizations ON user_organizations.organization_id = organizations.id").
		Where("user_organizations.user_id = ?", userID).
		Order("organizations.name asc").
		Find(&orgs).Error
	if err != nil {
		return nil, fmt.Errorf("list organizations for user %d: %w", userID, err)
	}
	return orgs, nil
}

// GetOrganization loads one organization by id.
func (s *Store) GetOrganization(ctx context.Context, id uint) (*Organization, error) {
	var org Organization
	err := s.db.WithContext(ctx).First(&org, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load organization %d: %w", id, err)
	}
	return &org, nil
}

// SetUserOrganization switches the user's active organization. The caller
// is responsible for verifying membership first.
func (s *Store) SetUserOrganization(ctx context.Context, userID, orgID uint) (*Organization, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("organization_id", orgID)
	if result.Error != nil {
		return nil, fmt.Errorf("update user %d organization: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return org, nil
}

// TimeEntriesSince returns a user's work sessions starting at or after the
// cutoff, oldest first, with their commit records attached.
func (s *Store) TimeEntriesSince(ctx context.Context, userID uint, since time.Time) ([]TimeEntry, error) {
	var entries []TimeEntry
	err := s.db.WithContext(ctx).
		Preload("Commits").
		Where("user_id = ? AND time_in >= ?", userID, since).
		Order("time_in asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list time entries for user %d: %w", userID, err)
	}
	return entries, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
