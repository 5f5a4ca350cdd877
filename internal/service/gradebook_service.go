package service

import (
	"context"

	"frubric_backend/internal/repository"
	"frubric_backend/pkg/logger"
	"frubric_backend/pkg/monitoring"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultAggregation = "mean"
	taskGradebookSync  = "gradebook_sync"
)

// GradebookService 为每个评分区域维护成绩册分类
type GradebookService struct {
	AreaRepo     *repository.AreaRepository
	CategoryRepo *repository.GradeCategoryRepository
}

func NewGradebookService(areaRepo *repository.AreaRepository, categoryRepo *repository.GradeCategoryRepository) *GradebookService {
	return &GradebookService{AreaRepo: areaRepo, CategoryRepo: categoryRepo}
}

// BootstrapCategories 为缺少分类的区域补建，返回新建数量
func (s *GradebookService) BootstrapCategories(ctx context.Context) (created int, err error) {
	defer func() { monitoring.ObserveTask(taskGradebookSync, err) }()

	areas, err := s.AreaRepo.ListAll()
	if err != nil {
		return 0, errors.Wrap(err, "list areas")
	}
	for i := range areas {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		ok, err := s.CategoryRepo.EnsureForArea(&areas[i], defaultAggregation)
		if err != nil {
			return created, errors.Wrapf(err, "ensure category for area %d", areas[i].ID)
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		logger.Log.Info("Grade categories created", zap.Int("created", created))
	}
	return created, nil
}
