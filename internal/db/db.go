package db

import (
	"log"

	"github.com/healthlink/healthlink-backend/internal/chat"
	"github.com/healthlink/healthlink-backend/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

func Migrate(gdb *gorm.DB) {
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.PatientProfile{},
		&models.DoctorProfile{},
		&models.Appointment{},
		&models.Notification{},
		&chat.Conversation{},
		&chat.Message{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}
}
