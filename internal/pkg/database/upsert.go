package database

import (
	"errors"

	"gorm.io/gorm"
)

// FindOrCreate looks up a single record with the given lookup scope and
// either creates it via create() or merges the incoming state into the
// existing row via merge(). The merge callback decides field by field what an
// update may overwrite, which keeps sticky flags and previously resolved
// owners intact when a later event carries less information.
//
// Webhook deliveries are at-least-once and unordered, so both branches must
// stay safe to replay.
func FindOrCreate[T any](db *gorm.DB, lookup func(*gorm.DB) *gorm.DB, create func() *T, merge func(existing *T)) (*T, bool, error) {
	var existing T
	err := lookup(db.Model(new(T))).First(&existing).Error
	if err == nil {
		merge(&existing)
		if err := db.Save(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	fresh := create()
	if err := db.Create(fresh).Error; err != nil {
		return nil, false, err
	}
	return fresh, true, nil
}
