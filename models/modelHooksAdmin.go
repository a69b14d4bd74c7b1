package models

import (
	"gorm.io/gorm"
)

func (u *User) AfterCreate(tx *gorm.DB) (err error) {
	// The owner user is created inside the company bootstrap before any
	// authenticated user exists, so its history row is built directly.
	if u.Role == UserRoleOwner {
		var history History
		history.CompanyId = u.CompanyId
		history.ActionType = "REGISTER"
		history.ReferenceID = u.ID
		history.ReferenceType = "users"
		history.Description = "created owner user"

		// create history
		if err := tx.Create(&history).Error; err != nil {
			return err
		}

		// clearing cache
		if err := u.RemoveAllRedis(); err != nil {
			return err
		}

		return nil
	}

	if err := createHistory(tx, "REGISTER", u.ID, "users", nil, u, "created user"); err != nil {
		return err
	}

	// clearing cache
	if err := u.RemoveAllRedis(); err != nil {
		return err
	}

	return nil
}

func (u *User) BeforeUpdate(tx *gorm.DB) (err error) {
	// creating history
	if err := SaveHistoryUpdate(tx, u.ID, u, "Updated User"); err != nil {
		return err
	}
	// clearing cache
	if err := RemoveRedisBoth(*u); err != nil {
		return err
	}

	return nil
}

func (u *User) AfterDelete(tx *gorm.DB) (err error) {
	// creating history
	if err := SaveHistoryDelete(tx, u.ID, u, "Deleted User"); err != nil {
		return err
	}
	// clearing cache
	if err := RemoveRedisBoth(*u); err != nil {
		return err
	}

	return nil
}
