package models

import (
	"log"

	"github.com/dwellmatch/estates_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &Agent{},
		&ServiceRequest{}, &RequestComment{},
		&LeadReceipt{},
		&Advertisement{}, &AdEvent{},
		&Notification{}, &NotificationOutbox{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
