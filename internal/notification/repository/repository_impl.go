package repository

import (
	"context"

	"github.com/smallbiznis/staybook/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.Notification) error {
	return db.WithContext(ctx).Create(item).Error
}
