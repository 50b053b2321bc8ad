package identity

import (
	"context"
	"errors"

	"github.com/healthlink/healthlink-backend/internal/models"
	"gorm.io/gorm"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrProfileNotFound = errors.New("profile not found")
)

// Identity is the trusted (role, profile) pair for an authenticated user.
// Role tags which kind of profile ProfileID names; there is exactly one
// profile id per identity, never two optional ones.
type Identity struct {
	UserID      uint64
	Role        models.Role
	ProfileID   uint64
	DisplayName string
}

type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve maps an authenticated user id (already verified by the token
// middleware) to its role and role-specific profile id. Callers must use the
// returned pair for authorization, never ids from the request body.
func (r *Resolver) Resolve(ctx context.Context, userID uint64) (Identity, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, ErrUnauthenticated
		}
		return Identity{}, err
	}

	profileID, err := r.ProfileID(ctx, user.ID, user.Role)
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		UserID:      user.ID,
		Role:        user.Role,
		ProfileID:   profileID,
		DisplayName: user.DisplayName,
	}, nil
}

// ProfileID looks up the role-specific profile id for a user. Used both for
// the caller's own identity and to translate a counterpart user id into the
// foreign key a conversation stores.
func (r *Resolver) ProfileID(ctx context.Context, userID uint64, role models.Role) (uint64, error) {
	switch role {
	case models.RolePatient:
		var p models.PatientProfile
		if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, ErrProfileNotFound
			}
			return 0, err
		}
		return p.ID, nil
	case models.RoleDoctor:
		var d models.DoctorProfile
		if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&d).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, ErrProfileNotFound
			}
			return 0, err
		}
		return d.ID, nil
	}
	return 0, ErrProfileNotFound
}

// DisplayNameForProfile resolves a profile id back to its user's display
// name, for enriching conversation summaries.
func (r *Resolver) DisplayNameForProfile(ctx context.Context, profileID uint64, role models.Role) (string, error) {
	userID, err := r.UserIDForProfile(ctx, profileID, role)
	if err != nil {
		return "", err
	}
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return "", err
	}
	return user.DisplayName, nil
}

// UserIDForProfile is the reverse translation, used when enriching
// conversation summaries with counterpart display names.
func (r *Resolver) UserIDForProfile(ctx context.Context, profileID uint64, role models.Role) (uint64, error) {
	switch role {
	case models.RolePatient:
		var p models.PatientProfile
		if err := r.db.WithContext(ctx).First(&p, profileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, ErrProfileNotFound
			}
			return 0, err
		}
		return p.UserID, nil
	case models.RoleDoctor:
		var d models.DoctorProfile
		if err := r.db.WithContext(ctx).First(&d, profileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, ErrProfileNotFound
			}
			return 0, err
		}
		return d.UserID, nil
	}
	return 0, ErrProfileNotFound
}
