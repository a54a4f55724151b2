package handler

import "cfa-planning/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Calendar      *CalendarHandler
	RecurringSlot *RecurringSlotHandler
	Planning      *PlanningHandler
	Occurrence    *OccurrenceHandler
	Export        *ExportHandler
	Health        *HealthHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, checks map[string]HealthCheck) *Handler {
	return &Handler{
		Calendar:      NewCalendarHandler(svc.Calendar),
		RecurringSlot: NewRecurringSlotHandler(svc.RecurringSlot),
		Planning:      NewPlanningHandler(svc.Materializer),
		Occurrence:    NewOccurrenceHandler(svc.Occurrence),
		Export:        NewExportHandler(svc.Export),
		Health:        NewHealthHandler(checks),
	}
}
