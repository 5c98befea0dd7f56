package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	sync_feature "go-dbsync/internal/features/sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type ScheduleService interface {
	Start(ctx context.Context) error
	Stop() error
	// Refresh reconciles registered entries with the active configs.
	Refresh(ctx context.Context) error
	List() []ScheduledRun
}

type entry struct {
	id   cron.EntryID
	spec string
	name string
}

type ScheduleServiceImpl struct {
	syncService sync_feature.SyncService
	logger      *zap.Logger

	scheduler  *cron.Cron
	jobEntries map[string]entry
	refreshID  cron.EntryID
	mu         sync.RWMutex
}

func NewScheduleService(syncService sync_feature.SyncService, logger *zap.Logger) ScheduleService {
	return &ScheduleServiceImpl{
		syncService: syncService,
		logger:      logger.Named("schedule"),
		scheduler:   cron.New(),
		jobEntries:  make(map[string]entry),
	}
}

func (s *ScheduleServiceImpl) Start(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load scheduled configs: %w", err)
	}

	id, err := s.scheduler.AddFunc(refreshSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error("Schedule refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.refreshID = id
	s.mu.Unlock()

	s.scheduler.Start()
	s.logger.Info("Scheduler started", zap.Int("schedules", len(s.List())))
	return nil
}

func (s *ScheduleServiceImpl) Stop() error {
	ctx := s.scheduler.Stop()
	<-ctx.Done()
	return nil
}

func (s *ScheduleServiceImpl) Refresh(ctx context.Context) error {
	configs, err := s.syncService.ListScheduledConfigs(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		id := cfg.ID.Hex()
		wanted[id] = true

		if cur, ok := s.jobEntries[id]; ok {
			if cur.spec == cfg.Schedule {
				cur.name = cfg.Name
				s.jobEntries[id] = cur
				continue
			}
			s.scheduler.Remove(cur.id)
			delete(s.jobEntries, id)
		}

		entryID, err := s.scheduler.AddFunc(cfg.Schedule, s.runner(id))
		if err != nil {
			s.logger.Error("Invalid schedule, config skipped",
				zap.String("config_id", id),
				zap.String("schedule", cfg.Schedule),
				zap.Error(err))
			continue
		}
		s.jobEntries[id] = entry{id: entryID, spec: cfg.Schedule, name: cfg.Name}
		s.logger.Info("Schedule registered", zap.String("config_id", id), zap.String("schedule", cfg.Schedule))
	}

	for id, cur := range s.jobEntries {
		if !wanted[id] {
			s.scheduler.Remove(cur.id)
			delete(s.jobEntries, id)
			s.logger.Info("Schedule removed", zap.String("config_id", id))
		}
	}
	return nil
}

func (s *ScheduleServiceImpl) runner(configID string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		job, err := s.syncService.TriggerRun(ctx, configID, triggeredBy)
		switch {
		case errors.Is(err, sync_feature.ErrRunInProgress):
			s.logger.Info("Previous run still in progress, tick skipped", zap.String("config_id", configID))
		case err != nil:
			s.logger.Error("Scheduled trigger failed", zap.String("config_id", configID), zap.Error(err))
		default:
			s.logger.Info("Scheduled run triggered", zap.String("config_id", configID), zap.String("job_id", job.ID.Hex()))
		}
	}
}

func (s *ScheduleServiceImpl) List() []ScheduledRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScheduledRun, 0, len(s.jobEntries))
	for id, cur := range s.jobEntries {
		run := ScheduledRun{ConfigID: id, ConfigName: cur.name, Schedule: cur.spec}
		e := s.scheduler.Entry(cur.id)
		if !e.Next.IsZero() {
			next := e.Next
			run.NextRun = &next
		}
		if !e.Prev.IsZero() {
			prev := e.Prev
			run.PrevRun = &prev
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigID < out[j].ConfigID })
	return out
}
