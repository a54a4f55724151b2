package service

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
	"cfa-planning/internal/repository"
)

// ── 学年日历模块业务错误 ──

var (
	ErrCalendarNotFound        = errors.New("学年日历不存在")
	ErrCalendarDateInvalid     = errors.New("学年日历结束日期必须晚于开始日期")
	ErrCalendarReferenceLocked = errors.New("日历已有单双周课时，不能修改 A 周基准")
	ErrClosedDayNotFound       = errors.New("停课日不存在")
	ErrClosedDayExists         = errors.New("该日期已是停课日")
	ErrClosedDayOutOfRange     = errors.New("停课日不在学年日历范围内")
	ErrClosedDayInvalid        = errors.New("停课日参数无效")
	ErrHolidayYearInvalid      = errors.New("年份超出支持范围")
)

// ClosedDates 停课日集合，按 "2006-01-02" 索引
type ClosedDates map[string]model.ClosedDay

// Contains 日期是否停课
func (c ClosedDates) Contains(date time.Time) bool {
	_, ok := c[recurrence.FormatDate(date)]
	return ok
}

// Get 取停课日详情
func (c ClosedDates) Get(date time.Time) (model.ClosedDay, bool) {
	d, ok := c[recurrence.FormatDate(date)]
	return d, ok
}

// CalendarService 学年日历与停课日业务接口
type CalendarService interface {
	Create(ctx context.Context, req *dto.CreateCalendarRequest, callerID string) (*dto.CalendarResponse, error)
	GetByID(ctx context.Context, id string) (*dto.CalendarResponse, error)
	GetCurrent(ctx context.Context) (*dto.CalendarResponse, error)
	List(ctx context.Context) ([]dto.CalendarResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateCalendarRequest, callerID string) (*dto.CalendarResponse, error)
	Activate(ctx context.Context, id string, callerID string) error
	Delete(ctx context.Context, id string, callerID string) error

	// ClosedDatesInRange 日历在 [start, end] 内的停课日；结果为空不是错误
	ClosedDatesInRange(ctx context.Context, calendarID string, start, end time.Time) (ClosedDates, error)
	ListClosedDays(ctx context.Context, calendarID string, req *dto.ClosedDayRangeRequest) ([]dto.ClosedDayResponse, error)
	AddClosedDay(ctx context.Context, calendarID string, req *dto.CreateClosedDayRequest, callerID string) (*dto.ClosedDayResponse, error)
	AddClosedPeriod(ctx context.Context, calendarID string, req *dto.CreateClosedPeriodRequest, callerID string) (*dto.ClosedDayBatchResponse, error)
	DeleteClosedDay(ctx context.Context, id string) error
	SeedPublicHolidays(ctx context.Context, calendarID string, callerID string) (*dto.ClosedDayBatchResponse, error)
	ImportClosures(ctx context.Context, calendarID, filename string, r io.Reader, callerID string) (*dto.ClosedDayBatchResponse, error)
	PublicHolidays(year int) ([]dto.HolidayResponse, error)
}

type calendarService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewCalendarService 创建 CalendarService 实例
func NewCalendarService(repo *repository.Repository, logger *zap.Logger) CalendarService {
	return &calendarService{repo: repo, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *calendarService) Create(ctx context.Context, req *dto.CreateCalendarRequest, callerID string) (*dto.CalendarResponse, error) {
	startDate, err := recurrence.ParseDate(req.StartDate)
	if err != nil {
		return nil, ErrCalendarDateInvalid
	}
	endDate, err := recurrence.ParseDate(req.EndDate)
	if err != nil {
		return nil, ErrCalendarDateInvalid
	}
	if !endDate.After(startDate) {
		return nil, ErrCalendarDateInvalid
	}

	cal := &model.AcademicCalendar{
		Name:      req.Name,
		StartDate: startDate,
		EndDate:   endDate,
		IsActive:  false,
		Status:    "active",
	}
	if req.ReferenceWeekA != nil {
		ref, err := recurrence.ParseDate(*req.ReferenceWeekA)
		if err != nil {
			return nil, ErrCalendarDateInvalid
		}
		monday := recurrence.MondayOf(ref)
		cal.ReferenceWeekA = &monday
	}
	cal.CreatedBy = &callerID
	cal.UpdatedBy = &callerID

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Calendar.Create(ctx, cal); err != nil {
			return err
		}
		if req.SeedHolidays {
			_, err := tx.ClosedDay.CreateBatch(ctx, holidayClosedDays(cal, callerID))
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Error("创建学年日历失败", zap.Error(err))
		return nil, err
	}

	return toCalendarResponse(cal), nil
}

// ────────────────────── GetByID / GetCurrent / List ──────────────────────

func (s *calendarService) GetByID(ctx context.Context, id string) (*dto.CalendarResponse, error) {
	cal, err := s.loadCalendar(ctx, id)
	if err != nil {
		return nil, err
	}
	return toCalendarResponse(cal), nil
}

func (s *calendarService) GetCurrent(ctx context.Context) (*dto.CalendarResponse, error) {
	cal, err := s.repo.Calendar.GetCurrent(ctx)
	if err != nil {
		if err = notFound(err, ErrCalendarNotFound); err != ErrCalendarNotFound {
			s.logger.Error("查询当前学年日历失败", zap.Error(err))
		}
		return nil, err
	}
	return toCalendarResponse(cal), nil
}

func (s *calendarService) List(ctx context.Context) ([]dto.CalendarResponse, error) {
	cals, err := s.repo.Calendar.List(ctx)
	if err != nil {
		s.logger.Error("列出学年日历失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.CalendarResponse, 0, len(cals))
	for i := range cals {
		result = append(result, *toCalendarResponse(&cals[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *calendarService) Update(ctx context.Context, id string, req *dto.UpdateCalendarRequest, callerID string) (*dto.CalendarResponse, error) {
	cal, err := s.loadCalendar(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		cal.Name = *req.Name
	}
	if req.StartDate != nil {
		d, err := recurrence.ParseDate(*req.StartDate)
		if err != nil {
			return nil, ErrCalendarDateInvalid
		}
		cal.StartDate = d
	}
	if req.EndDate != nil {
		d, err := recurrence.ParseDate(*req.EndDate)
		if err != nil {
			return nil, ErrCalendarDateInvalid
		}
		cal.EndDate = d
	}
	if !cal.EndDate.After(cal.StartDate) {
		return nil, ErrCalendarDateInvalid
	}
	if req.Status != nil {
		cal.Status = *req.Status
	}

	// A 周基准一旦被单双周课时使用即冻结，否则同一日期会被重新归类
	newRef := cal.ReferenceWeekA
	if req.ClearReference {
		newRef = nil
	} else if req.ReferenceWeekA != nil {
		d, err := recurrence.ParseDate(*req.ReferenceWeekA)
		if err != nil {
			return nil, ErrCalendarDateInvalid
		}
		monday := recurrence.MondayOf(d)
		newRef = &monday
	}
	if !sameDatePtr(cal.ReferenceWeekA, newRef) {
		n, err := s.repo.RecurringSlot.CountWithParity(ctx, id)
		if err != nil {
			s.logger.Error("统计单双周课时失败", zap.String("calendar_id", id), zap.Error(err))
			return nil, err
		}
		if n > 0 {
			return nil, ErrCalendarReferenceLocked
		}
		cal.ReferenceWeekA = newRef
	}

	cal.UpdatedBy = &callerID
	if err := s.repo.Calendar.Update(ctx, cal); err != nil {
		s.logger.Error("更新学年日历失败", zap.String("calendar_id", id), zap.Error(err))
		return nil, err
	}

	return toCalendarResponse(cal), nil
}

// ────────────────────── Activate ──────────────────────

func (s *calendarService) Activate(ctx context.Context, id string, callerID string) error {
	cal, err := s.loadCalendar(ctx, id)
	if err != nil {
		return err
	}

	// ClearActive + Update 在同一事务内，保证任意时刻最多一个当前日历
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Calendar.ClearActive(ctx); err != nil {
			return err
		}
		cal.IsActive = true
		cal.UpdatedBy = &callerID
		return tx.Calendar.Update(ctx, cal)
	})
	if err != nil {
		s.logger.Error("激活学年日历失败", zap.String("calendar_id", id), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Delete ──────────────────────

func (s *calendarService) Delete(ctx context.Context, id string, callerID string) error {
	if _, err := s.loadCalendar(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Calendar.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除学年日历失败", zap.String("calendar_id", id), zap.Error(err))
		return err
	}
	return nil
}

// ════════════════════════════════════════════════════════════
// 停课日
// ════════════════════════════════════════════════════════════

func (s *calendarService) ClosedDatesInRange(ctx context.Context, calendarID string, start, end time.Time) (ClosedDates, error) {
	return closedDatesInRange(ctx, s.repo, calendarID, start, end)
}

// closedDatesInRange 供事务内复用
func closedDatesInRange(ctx context.Context, repo *repository.Repository, calendarID string, start, end time.Time) (ClosedDates, error) {
	days, err := repo.ClosedDay.ListInRange(ctx, calendarID, recurrence.Date(start), recurrence.Date(end))
	if err != nil {
		return nil, err
	}
	set := make(ClosedDates, len(days))
	for _, d := range days {
		set[recurrence.FormatDate(d.Date)] = d
	}
	return set, nil
}

func (s *calendarService) ListClosedDays(ctx context.Context, calendarID string, req *dto.ClosedDayRangeRequest) ([]dto.ClosedDayResponse, error) {
	cal, err := s.loadCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	start, end := cal.StartDate, cal.EndDate
	if req != nil && req.Start != "" {
		if start, err = recurrence.ParseDate(req.Start); err != nil {
			return nil, ErrClosedDayInvalid
		}
	}
	if req != nil && req.End != "" {
		if end, err = recurrence.ParseDate(req.End); err != nil {
			return nil, ErrClosedDayInvalid
		}
	}

	days, err := s.repo.ClosedDay.ListInRange(ctx, calendarID, recurrence.Date(start), recurrence.Date(end))
	if err != nil {
		s.logger.Error("查询停课日失败", zap.String("calendar_id", calendarID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.ClosedDayResponse, 0, len(days))
	for i := range days {
		result = append(result, toClosedDayResponse(&days[i]))
	}
	return result, nil
}

func (s *calendarService) AddClosedDay(ctx context.Context, calendarID string, req *dto.CreateClosedDayRequest, callerID string) (*dto.ClosedDayResponse, error) {
	cal, err := s.loadCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	date, err := recurrence.ParseDate(req.Date)
	if err != nil || !model.IsValidClosedReason(req.Reason) {
		return nil, ErrClosedDayInvalid
	}
	if !cal.Contains(date) {
		return nil, ErrClosedDayOutOfRange
	}

	day := model.ClosedDay{CalendarID: calendarID, Date: date, Reason: req.Reason, Label: req.Label}
	day.CreatedBy = &callerID
	day.UpdatedBy = &callerID

	days := []model.ClosedDay{day}
	n, err := s.repo.ClosedDay.CreateBatch(ctx, days)
	if err != nil {
		s.logger.Error("新增停课日失败", zap.String("calendar_id", calendarID), zap.Error(err))
		return nil, err
	}
	if n == 0 {
		return nil, ErrClosedDayExists
	}

	// 生成的主键回写在切片元素上
	resp := toClosedDayResponse(&days[0])
	return &resp, nil
}

func (s *calendarService) AddClosedPeriod(ctx context.Context, calendarID string, req *dto.CreateClosedPeriodRequest, callerID string) (*dto.ClosedDayBatchResponse, error) {
	cal, err := s.loadCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	start, err := recurrence.ParseDate(req.StartDate)
	if err != nil {
		return nil, ErrClosedDayInvalid
	}
	end, err := recurrence.ParseDate(req.EndDate)
	if err != nil || end.Before(start) {
		return nil, ErrClosedDayInvalid
	}
	reason := req.Reason
	if reason == "" {
		reason = model.ClosedReasonBreak
	}
	if !model.IsValidClosedReason(reason) {
		return nil, ErrClosedDayInvalid
	}
	if !cal.Contains(start) || !cal.Contains(end) {
		return nil, ErrClosedDayOutOfRange
	}

	dates := recurrence.DatesInRange(start, end)
	days := make([]model.ClosedDay, 0, len(dates))
	for _, d := range dates {
		day := model.ClosedDay{CalendarID: calendarID, Date: d, Reason: reason, Label: req.Label}
		day.CreatedBy = &callerID
		day.UpdatedBy = &callerID
		days = append(days, day)
	}

	return s.insertClosedDays(ctx, calendarID, days)
}

func (s *calendarService) DeleteClosedDay(ctx context.Context, id string) error {
	if _, err := s.repo.ClosedDay.GetByID(ctx, id); err != nil {
		if err = notFound(err, ErrClosedDayNotFound); err != ErrClosedDayNotFound {
			s.logger.Error("查询停课日失败", zap.String("id", id), zap.Error(err))
		}
		return err
	}
	if err := s.repo.ClosedDay.Delete(ctx, id); err != nil {
		s.logger.Error("删除停课日失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// SeedPublicHolidays 写入日历跨度内每个自然年的法定节假日，重复执行不会产生重复行
func (s *calendarService) SeedPublicHolidays(ctx context.Context, calendarID string, callerID string) (*dto.ClosedDayBatchResponse, error) {
	cal, err := s.loadCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return s.insertClosedDays(ctx, calendarID, holidayClosedDays(cal, callerID))
}

func (s *calendarService) ImportClosures(ctx context.Context, calendarID, filename string, r io.Reader, callerID string) (*dto.ClosedDayBatchResponse, error) {
	cal, err := s.loadCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	entries, err := ParseClosures(filename, r)
	if err != nil {
		return nil, err
	}

	days := make([]model.ClosedDay, 0, len(entries))
	outside := 0
	for _, e := range entries {
		if !cal.Contains(e.Date) {
			outside++
			continue
		}
		day := model.ClosedDay{CalendarID: calendarID, Date: e.Date, Reason: e.Reason, Label: e.Label}
		day.CreatedBy = &callerID
		day.UpdatedBy = &callerID
		days = append(days, day)
	}

	resp, err := s.insertClosedDays(ctx, calendarID, days)
	if err != nil {
		return nil, err
	}
	resp.Skipped += outside

	s.logger.Info("导入停课日完成",
		zap.String("calendar_id", calendarID),
		zap.String("file", filename),
		zap.Int("imported", resp.Imported),
		zap.Int("skipped", resp.Skipped),
	)
	return resp, nil
}

func (s *calendarService) PublicHolidays(year int) ([]dto.HolidayResponse, error) {
	// 格里高利历复活节算法自 1583 年起有效
	if year < 1583 || year > 9999 {
		return nil, ErrHolidayYearInvalid
	}
	hs := recurrence.PublicHolidays(year)
	result := make([]dto.HolidayResponse, 0, len(hs))
	for _, h := range hs {
		result = append(result, dto.HolidayResponse{
			Date:    recurrence.FormatDate(h.Date),
			Label:   h.Label,
			Movable: h.Movable,
		})
	}
	return result, nil
}

// ── 内部辅助方法 ──

func (s *calendarService) loadCalendar(ctx context.Context, id string) (*model.AcademicCalendar, error) {
	cal, err := s.repo.Calendar.GetByID(ctx, id)
	if err != nil {
		if err = notFound(err, ErrCalendarNotFound); err != ErrCalendarNotFound {
			s.logger.Error("查询学年日历失败", zap.String("calendar_id", id), zap.Error(err))
		}
		return nil, err
	}
	return cal, nil
}

func (s *calendarService) insertClosedDays(ctx context.Context, calendarID string, days []model.ClosedDay) (*dto.ClosedDayBatchResponse, error) {
	n, err := s.repo.ClosedDay.CreateBatch(ctx, days)
	if err != nil {
		s.logger.Error("批量写入停课日失败", zap.String("calendar_id", calendarID), zap.Error(err))
		return nil, err
	}
	return &dto.ClosedDayBatchResponse{Imported: int(n), Skipped: len(days) - int(n)}, nil
}

// holidayClosedDays 日历跨度内的法定节假日
func holidayClosedDays(cal *model.AcademicCalendar, callerID string) []model.ClosedDay {
	hs := recurrence.PublicHolidaysBetween(cal.StartDate, cal.EndDate)
	days := make([]model.ClosedDay, 0, len(hs))
	for _, h := range hs {
		day := model.ClosedDay{
			CalendarID: cal.CalendarID,
			Date:       h.Date,
			Reason:     model.ClosedReasonPublicHoliday,
			Label:      h.Label,
		}
		day.CreatedBy = &callerID
		day.UpdatedBy = &callerID
		days = append(days, day)
	}
	return days
}

func sameDatePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return recurrence.Date(*a).Equal(recurrence.Date(*b))
}

func toCalendarResponse(cal *model.AcademicCalendar) *dto.CalendarResponse {
	return &dto.CalendarResponse{
		ID:             cal.CalendarID,
		Name:           cal.Name,
		StartDate:      recurrence.FormatDate(cal.StartDate),
		EndDate:        recurrence.FormatDate(cal.EndDate),
		ReferenceWeekA: formatDatePtr(cal.ReferenceWeekA),
		IsActive:       cal.IsActive,
		Status:         cal.Status,
		Version:        cal.Version,
		CreatedAt:      cal.CreatedAt.Format(timestampLayout),
		UpdatedAt:      cal.UpdatedAt.Format(timestampLayout),
	}
}

func toClosedDayResponse(d *model.ClosedDay) dto.ClosedDayResponse {
	return dto.ClosedDayResponse{
		ID:         d.ClosedDayID,
		CalendarID: d.CalendarID,
		Date:       recurrence.FormatDate(d.Date),
		Reason:     d.Reason,
		Label:      d.Label,
	}
}
