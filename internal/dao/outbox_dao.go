package dao

import (
	"time"

	"gorm.io/gorm"

	"sentinel/internal/models"
)

type OutboxDAO interface {
	FetchUnpublished(limit int) ([]models.OutboxEntry, error)
	MarkPublished(id uint) error
	Bump(id uint) error
}

type outboxDAO struct {
	db *gorm.DB
}

func NewOutboxDAO(db *gorm.DB) OutboxDAO {
	return &outboxDAO{db: db}
}

func (dao *outboxDAO) FetchUnpublished(limit int) ([]models.OutboxEntry, error) {
	if limit < 1 {
		limit = 50
	}
	var entries []models.OutboxEntry
	err := dao.db.Where("published_at IS NULL").
		Order("id").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (dao *outboxDAO) MarkPublished(id uint) error {
	now := time.Now().UTC()
	return dao.db.Model(&models.OutboxEntry{}).
		Where("id = ?", id).
		Update("published_at", now).Error
}

func (dao *outboxDAO) Bump(id uint) error {
	return dao.db.Model(&models.OutboxEntry{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}
