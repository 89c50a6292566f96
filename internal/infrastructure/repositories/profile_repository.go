package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/you/otpgate/domain"
	"gorm.io/gorm"
)

// ProfileRepositoryImpl implements domain.ProfileStore using GORM
type ProfileRepositoryImpl struct {
	db   *gorm.DB
	nowF func() time.Time
}

// DBUser represents an identity provider user known to the profile store
type DBUser struct {
	ID          uint    `gorm:"primaryKey"`
	ClerkUserID string  `gorm:"uniqueIndex;size:255;not null"`
	Email       *string `gorm:"size:255"`
	FullName    *string `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (DBUser) TableName() string {
	return "users"
}

// DBPrivateProfile holds the contact details collected for one user
type DBPrivateProfile struct {
	ID                    uint    `gorm:"primaryKey"`
	UserID                uint    `gorm:"uniqueIndex;not null"`
	User                  DBUser  `gorm:"foreignKey:UserID"`
	Email                 *string `gorm:"size:255"`
	FullName              *string `gorm:"size:255"`
	Address               *string
	ChurchName            *string `gorm:"size:255"`
	PhoneCountryCode      *string `gorm:"size:8"`
	PhoneNumber           *string `gorm:"size:32"`
	FullPhoneNumber       *string `gorm:"index;size:40"`
	PhoneVerifiedAt       *time.Time
	LaunchNotifyOptIn     *bool
	LaunchNotifyUpdatedAt *time.Time
	CreatedAt             time.Time `gorm:"index"`
	UpdatedAt             time.Time
}

// TableName returns the table name for GORM
func (DBPrivateProfile) TableName() string {
	return "private_profiles"
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *gorm.DB) *ProfileRepositoryImpl {
	return &ProfileRepositoryImpl{db: db, nowF: time.Now}
}

// findOrCreateUser returns the user row for clerkUserID, creating it on first sight
func (r *ProfileRepositoryImpl) findOrCreateUser(tx *gorm.DB, clerkUserID string, now time.Time) (*DBUser, bool, error) {
	var user DBUser
	err := tx.Where("clerk_user_id = ?", clerkUserID).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	user = DBUser{ClerkUserID: clerkUserID, CreatedAt: now, UpdatedAt: now}
	if err := tx.Create(&user).Error; err != nil {
		return nil, false, err
	}
	return &user, true, nil
}

func (r *ProfileRepositoryImpl) findProfile(tx *gorm.DB, userID uint) (*DBPrivateProfile, error) {
	var profile DBPrivateProfile
	err := tx.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// UpsertVerifiedProfile implements domain.ProfileStore
func (r *ProfileRepositoryImpl) UpsertVerifiedProfile(ctx context.Context, p domain.VerifiedProfile) error {
	now := r.nowF().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, created, err := r.findOrCreateUser(tx, p.UserID, now)
		if err != nil {
			return err
		}

		userPatch := map[string]interface{}{"updated_at": now}
		if p.Contact.Email != nil {
			userPatch["email"] = *p.Contact.Email
		}
		if p.Contact.FullName != nil {
			userPatch["full_name"] = *p.Contact.FullName
		}
		if !created || len(userPatch) > 1 {
			if err := tx.Model(user).Updates(userPatch).Error; err != nil {
				return err
			}
		}

		profile, err := r.findProfile(tx, user.ID)
		if err != nil {
			return err
		}
		if profile == nil {
			profile = &DBPrivateProfile{UserID: user.ID, CreatedAt: now}
		}
		if p.Contact.Email != nil {
			profile.Email = p.Contact.Email
		}
		if p.Contact.FullName != nil {
			profile.FullName = p.Contact.FullName
		}
		if p.Contact.Address != nil {
			profile.Address = p.Contact.Address
		}
		if p.Contact.ChurchName != nil {
			profile.ChurchName = p.Contact.ChurchName
		}
		profile.PhoneCountryCode = &p.CountryCode
		profile.PhoneNumber = &p.PhoneNumber
		profile.FullPhoneNumber = &p.FullPhoneNumber
		profile.PhoneVerifiedAt = &now
		profile.UpdatedAt = now
		return tx.Omit("User").Save(profile).Error
	})
}

// PhoneOwners implements domain.ProfileStore
func (r *ProfileRepositoryImpl) PhoneOwners(ctx context.Context, fullPhoneNumber string) ([]string, error) {
	var owners []string
	err := r.db.WithContext(ctx).
		Model(&DBPrivateProfile{}).
		Distinct().
		Joins("JOIN users ON users.id = private_profiles.user_id").
		Where("private_profiles.full_phone_number = ?", fullPhoneNumber).
		Limit(10).
		Pluck("users.clerk_user_id", &owners).Error
	if err != nil {
		return nil, err
	}
	return owners, nil
}

// GetLaunchNotify implements domain.ProfileStore
func (r *ProfileRepositoryImpl) GetLaunchNotify(ctx context.Context, userID string) (*domain.LaunchNotifyPreference, error) {
	db := r.db.WithContext(ctx)
	var user DBUser
	if err := db.Where("clerk_user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.LaunchNotifyPreference{}, nil
		}
		return nil, err
	}

	profile, err := r.findProfile(db, user.ID)
	if err != nil {
		return nil, err
	}
	pref := &domain.LaunchNotifyPreference{}
	if profile != nil {
		pref.OptIn = profile.LaunchNotifyOptIn != nil && *profile.LaunchNotifyOptIn
		pref.UpdatedAt = profile.LaunchNotifyUpdatedAt
	}
	return pref, nil
}

// SetLaunchNotify implements domain.ProfileStore
func (r *ProfileRepositoryImpl) SetLaunchNotify(ctx context.Context, userID string, optIn bool) error {
	now := r.nowF().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, created, err := r.findOrCreateUser(tx, userID, now)
		if err != nil {
			return err
		}
		if !created {
			if err := tx.Model(user).Update("updated_at", now).Error; err != nil {
				return err
			}
		}

		profile, err := r.findProfile(tx, user.ID)
		if err != nil {
			return err
		}
		if profile == nil {
			profile = &DBPrivateProfile{UserID: user.ID, CreatedAt: now}
		}
		profile.LaunchNotifyOptIn = &optIn
		profile.LaunchNotifyUpdatedAt = &now
		profile.UpdatedAt = now
		return tx.Omit("User").Save(profile).Error
	})
}

// ListProfiles implements domain.ProfileStore. Newest profiles come first.
func (r *ProfileRepositoryImpl) ListProfiles(ctx context.Context, limit int) ([]domain.ProfileRow, error) {
	var profiles []DBPrivateProfile
	err := r.db.WithContext(ctx).
		Preload("User").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}

	rows := make([]domain.ProfileRow, 0, len(profiles))
	for i := range profiles {
		rows = append(rows, r.dbToDomain(&profiles[i]))
	}
	return rows, nil
}

// dbToDomain converts a database profile to the operator view
func (r *ProfileRepositoryImpl) dbToDomain(p *DBPrivateProfile) domain.ProfileRow {
	row := domain.ProfileRow{
		ClerkUserID:       p.User.ClerkUserID,
		FullName:          p.FullName,
		Email:             p.Email,
		CountryCode:       p.PhoneCountryCode,
		PhoneNumber:       p.PhoneNumber,
		FullPhoneNumber:   p.FullPhoneNumber,
		ChurchName:        p.ChurchName,
		Address:           p.Address,
		LaunchNotifyOptIn: p.LaunchNotifyOptIn,
		UpdatedAt:         domain.ToEpochMillis(p.UpdatedAt),
	}
	if row.FullName == nil {
		row.FullName = p.User.FullName
	}
	if row.Email == nil {
		row.Email = p.User.Email
	}
	if p.LaunchNotifyUpdatedAt != nil {
		ms := domain.ToEpochMillis(*p.LaunchNotifyUpdatedAt)
		row.LaunchNotifyUpdatedAt = &ms
	}
	if p.PhoneVerifiedAt != nil {
		ms := domain.ToEpochMillis(*p.PhoneVerifiedAt)
		row.PhoneVerifiedAt = &ms
	}
	return row
}
