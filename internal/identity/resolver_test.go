package identity

import (
	"context"
	"errors"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/healthlink/healthlink-backend/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.PatientProfile{}, &models.DoctorProfile{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestResolve_PatientAndDoctor(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(db)
	ctx := context.Background()

	pat := models.User{Email: "p@example.com", Username: "p0000000001", PasswordHash: "x", Role: models.RolePatient, DisplayName: "Pat"}
	doc := models.User{Email: "d@example.com", Username: "d0000000001", PasswordHash: "x", Role: models.RoleDoctor, DisplayName: "Dr. D"}
	if err := db.Create(&pat).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(&doc).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	pp := models.PatientProfile{UserID: pat.ID}
	dp := models.DoctorProfile{UserID: doc.ID}
	if err := db.Create(&pp).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(&dp).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	ident, err := r.Resolve(ctx, pat.ID)
	if err != nil {
		t.Fatalf("resolve patient: %v", err)
	}
	if ident.Role != models.RolePatient || ident.ProfileID != pp.ID || ident.DisplayName != "Pat" {
		t.Fatalf("unexpected identity: %+v", ident)
	}

	ident, err = r.Resolve(ctx, doc.ID)
	if err != nil {
		t.Fatalf("resolve doctor: %v", err)
	}
	if ident.Role != models.RoleDoctor || ident.ProfileID != dp.ID {
		t.Fatalf("unexpected identity: %+v", ident)
	}

	// Cross-role profile lookups translate a counterpart user id.
	id, err := r.ProfileID(ctx, doc.ID, models.RoleDoctor)
	if err != nil || id != dp.ID {
		t.Fatalf("profile id lookup: id=%d err=%v", id, err)
	}
	if _, err := r.ProfileID(ctx, doc.ID, models.RolePatient); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected profile-not-found for wrong role, got %v", err)
	}
}

func TestResolve_UnknownUser(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(db)

	if _, err := r.Resolve(context.Background(), 999); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestResolve_MissingProfile(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(db)

	u := models.User{Email: "x@example.com", Username: "x0000000001", PasswordHash: "x", Role: models.RolePatient, DisplayName: "X"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := r.Resolve(context.Background(), u.ID); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected profile-not-found, got %v", err)
	}
}
