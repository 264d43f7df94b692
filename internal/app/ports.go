package app

import (
	"context"

	"github.com/evanschultz/rz/internal/domain"
)

// Repository is the persistence boundary for the whole state tree.
// GetDay returns a zero aggregate for unknown days; the singleton
// getters (settings, guide, metrics) return ErrNotFound until first
// saved so callers can fall back to defaults.
type Repository interface {
	CreateTask(context.Context, domain.Task) error
	UpdateTask(context.Context, domain.Task) error
	GetTask(context.Context, string) (domain.Task, error)
	ListTasks(context.Context) ([]domain.Task, error)

	CreateListEntry(context.Context, domain.ListEntry) error
	UpdateListEntry(context.Context, domain.ListEntry) error
	ListEntries(context.Context) ([]domain.ListEntry, error)

	GetDay(context.Context, string) (domain.DayStats, error)
	UpsertDay(context.Context, string, domain.DayStats) error
	ListDays(context.Context) (domain.DailyLedger, error)

	GetSettings(context.Context) (domain.Settings, error)
	SaveSettings(context.Context, domain.Settings) error
	GetGuideProgress(context.Context) (domain.GuideProgress, error)
	SaveGuideProgress(context.Context, domain.GuideProgress) error
	GetMetrics(context.Context) (domain.Metrics, error)
	SaveMetrics(context.Context, domain.Metrics) error

	Reset(context.Context) error
}
