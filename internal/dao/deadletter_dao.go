package dao

import (
	"time"

	"gorm.io/gorm"

	"sentinel/internal/models"
)

type DeadLetterDAO interface {
	Save(letter *models.DeadLetter) error
	ListUnreplayed() ([]models.DeadLetter, error)
	MarkReplayed(id uint) error
}

type deadLetterDAO struct {
	db *gorm.DB
}

func NewDeadLetterDAO(db *gorm.DB) DeadLetterDAO {
	return &deadLetterDAO{db: db}
}

func (dao *deadLetterDAO) Save(letter *models.DeadLetter) error {
	return dao.db.Create(letter).Error
}

func (dao *deadLetterDAO) ListUnreplayed() ([]models.DeadLetter, error) {
	var letters []models.DeadLetter
	err := dao.db.Where("replayed_at IS NULL").Order("id").Find(&letters).Error
	return letters, err
}

func (dao *deadLetterDAO) MarkReplayed(id uint) error {
	now := time.Now().UTC()
	return dao.db.Model(&models.DeadLetter{}).
		Where("id = ?", id).
		Update("replayed_at", now).Error
}
