package service

import (
	"go.uber.org/zap"

	"cfa-planning/config"
	"cfa-planning/internal/repository"
	"cfa-planning/pkg/broker"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Calendar      CalendarService
	Conflict      ConflictService
	RecurringSlot RecurringSlotService
	Materializer  MaterializerService
	Occurrence    OccurrenceService
	Export        ExportService
}

// NewService 创建 Service 聚合
// locker 决定课时级互斥的范围：单实例用进程内锁，多实例用 Redis 锁
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	locker SlotLocker,
	publisher broker.Publisher,
	logger *zap.Logger,
) *Service {
	if publisher == nil {
		publisher = broker.NopPublisher{}
	}
	return &Service{
		Calendar:      NewCalendarService(repo, logger),
		Conflict:      NewConflictService(repo, logger),
		RecurringSlot: NewRecurringSlotService(cfg.Planning, repo, locker, publisher, logger),
		Materializer:  NewMaterializerService(cfg.Planning, repo, locker, publisher, logger),
		Occurrence:    NewOccurrenceService(repo, publisher, logger),
		Export:        NewExportService(cfg.Planning, repo, logger),
	}
}
