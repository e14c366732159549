package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/leadhub/crm/internal/models"
)

const (
	DailyGoal          = 30
	recentTransactions = 10
)

type StageCount struct {
	Stage string `json:"stage"`
	Count int64  `json:"count"`
}

type Stats struct {
	TotalLeads         int64                `json:"total_leads"`
	TotalInteractions  int64                `json:"total_interactions"`
	LeadsByStage       []StageCount         `json:"leads_by_stage"`
	Balance            int64                `json:"user_balance"`
	TelegramConnected  bool                 `json:"telegram_connected"`
	RecentTransactions []models.Transaction `json:"recent_transactions"`
	DailyOutreachCount int64                `json:"daily_outreach_count"`
	DailyGoal          int                  `json:"daily_goal"`
	DailyGrowth        string               `json:"daily_growth"`
}

// StatsService builds the dashboard summary. Day boundaries use loc.
type StatsService struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

func NewStatsService(gdb *gorm.DB, loc *time.Location) *StatsService {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsService{db: gdb, loc: loc, now: time.Now}
}

func (s *StatsService) Stats(ctx context.Context, accountID uint) (*Stats, error) {
	q := s.db.WithContext(ctx)

	var acc models.Account
	if err := q.Select("id", "balance", "telegram_chat_id").First(&acc, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "account", ID: accountID}
		}
		return nil, err
	}

	st := &Stats{
		Balance:           acc.Balance,
		TelegramConnected: acc.TelegramChatID != nil && *acc.TelegramChatID != "",
		DailyGoal:         DailyGoal,
	}
	if err := q.Model(&models.Lead{}).Where("is_archived = ?", false).Count(&st.TotalLeads).Error; err != nil {
		return nil, err
	}
	if err := q.Model(&models.Interaction{}).Count(&st.TotalInteractions).Error; err != nil {
		return nil, err
	}

	byStage, err := StageCounts(q)
	if err != nil {
		return nil, err
	}
	st.LeadsByStage = byStage

	if err := q.Where("account_id = ?", accountID).
		Order("timestamp desc, id desc").
		Limit(recentTransactions).
		Find(&st.RecentTransactions).Error; err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	yesterday := today.AddDate(0, 0, -1)
	todayCount, err := interactionsBetween(q, today, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	yesterdayCount, err := interactionsBetween(q, yesterday, today)
	if err != nil {
		return nil, err
	}
	st.DailyOutreachCount = todayCount
	st.DailyGrowth = Growth(todayCount, yesterdayCount)
	return st, nil
}

// StageCounts counts non-archived leads per stage, known stages in funnel
// order first, then any other labels alphabetically.
func StageCounts(q *gorm.DB) ([]StageCount, error) {
	var rows []StageCount
	err := q.Model(&models.Lead{}).
		Select("stage, COUNT(*) AS count").
		Where("is_archived = ?", false).
		Group("stage").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		ri, rj := models.StageRank(rows[i].Stage), models.StageRank(rows[j].Stage)
		if ri != rj {
			return ri < rj
		}
		return rows[i].Stage < rows[j].Stage
	})
	return rows, nil
}

func interactionsBetween(q *gorm.DB, from, to time.Time) (int64, error) {
	var n int64
	err := q.Model(&models.Interaction{}).
		Where("timestamp >= ? AND timestamp < ?", from.UTC(), to.UTC()).
		Count(&n).Error
	return n, err
}

// Growth formats today's change against yesterday as a signed percentage.
func Growth(today, yesterday int64) string {
	if yesterday == 0 {
		if today == 0 {
			return "0%"
		}
		return "+100%"
	}
	pct := int64(math.Round(float64(today-yesterday) * 100 / float64(yesterday)))
	switch {
	case pct > 0:
		return fmt.Sprintf("+%d%%", pct)
	case pct < 0:
		return fmt.Sprintf("%d%%", pct)
	default:
		return "0%"
	}
}
