package service

import (
	"context"
	"strings"
	"time"

	"parish/models"

	"gorm.io/gorm"
)

// PeriodStore 预算期间
type PeriodStore struct {
	store *store
}

// CreatePeriodInput 创建期间
type CreatePeriodInput struct {
	Name      string    `json:"name"`
	Year      int       `json:"year"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// CreatePeriod 创建期间，初始状态为 DRAFT
func (s *PeriodStore) CreatePeriod(ctx context.Context, actor Actor, in CreatePeriodInput) (*models.Period, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	if in.Year <= 0 {
		return nil, fieldError(KindInvalidRange, EntityPeriod, 0, "year", "年度必须大于 0")
	}
	if !in.StartDate.Before(in.EndDate) {
		return nil, fieldError(KindInvalidRange, EntityPeriod, 0, "end_date", "开始日期 %s 必须早于结束日期 %s",
			in.StartDate.Format("2006-01-02"), in.EndDate.Format("2006-01-02"))
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.StartDate.Format("2006-01-02") + " ~ " + in.EndDate.Format("2006-01-02")
	}

	p := models.Period{
		Name:      name,
		Year:      in.Year,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    models.PeriodStatusDraft,
	}
	err := s.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkOverlap(tx, &p); err != nil {
			return err
		}
		return dbError("create_period", tx.Create(&p).Error)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// checkOverlap 同一年度已有日期重叠的 ACTIVE 期间时返回 OverlappingPeriod
func (s *PeriodStore) checkOverlap(tx *gorm.DB, p *models.Period) error {
	if !s.store.policy.EnforcePeriodOverlap {
		return nil
	}
	var actives []models.Period
	if err := tx.Where("year = ? AND status = ? AND id <> ?", p.Year, models.PeriodStatusActive, p.ID).
		Find(&actives).Error; err != nil {
		return dbError("load_active_periods", err)
	}
	for i := range actives {
		if actives[i].Overlaps(p.StartDate, p.EndDate) {
			return newError(KindOverlappingPeriod, EntityPeriod, actives[i].ID,
				"%d 年度已有日期重叠的进行中期间 %s", p.Year, actives[i].Name)
		}
	}
	return nil
}

// SetStatus 变更期间状态
// 状态只能 DRAFT → ACTIVE → CLOSED 前进，回退返回 InvalidTransition（受策略控制）。
func (s *PeriodStore) SetStatus(ctx context.Context, actor Actor, id uint, status string) (*models.Period, error) {
	if err := s.store.policy.authorizeWrite(actor); err != nil {
		return nil, err
	}
	if models.PeriodStatusRank(status) < 0 {
		return nil, fieldError(KindInvalidInput, EntityPeriod, id, "status", "未知状态 %q", status)
	}

	lock := s.store.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	var p *models.Period
	err := s.store.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = lockPeriod(tx, id); err != nil {
			return err
		}
		if p.Status == status {
			return nil
		}
		if s.store.policy.EnforceStatusTransitions &&
			models.PeriodStatusRank(status) < models.PeriodStatusRank(p.Status) {
			return newError(KindInvalidTransition, EntityPeriod, id, "状态不能从 %s 回退到 %s", p.Status, status)
		}
		p.Status = status
		p.IsActive = status == models.PeriodStatusActive
		if p.IsActive {
			if err := s.checkOverlap(tx, p); err != nil {
				return err
			}
		}
		return dbError("update_period_status", tx.Model(p).Select("status", "is_active").Updates(p).Error)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPeriod 读取期间
func (s *PeriodStore) GetPeriod(ctx context.Context, id uint) (*models.Period, error) {
	var p models.Period
	if err := first(s.store.conn(ctx), &p, EntityPeriod, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPeriods 列出期间，year 为 0 时不过滤
func (s *PeriodStore) ListPeriods(ctx context.Context, year int) ([]models.Period, error) {
	q := s.store.conn(ctx).Order("start_date DESC, id DESC")
	if year > 0 {
		q = q.Where("year = ?", year)
	}
	var list []models.Period
	if err := q.Find(&list).Error; err != nil {
		return nil, dbError("list_periods", err)
	}
	return list, nil
}
