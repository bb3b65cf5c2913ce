// Package service implements the time-indexed alarm scheduler and its tick worker
package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"chime/internal/core/clock"
	"chime/internal/platform/bus"
	perr "chime/internal/platform/errors"
	"chime/internal/platform/logger"
	"chime/internal/services/alarms/domain"
	"chime/internal/services/alarms/repo"

	"github.com/google/uuid"
)

// Config for the scheduler service
type Config struct {
	TickInterval    time.Duration // default 1s
	CleanupEvery    time.Duration // default 10m
	StatsEvery      time.Duration // default 5m
	StaleAfter      time.Duration // default 1h, one-shot cleanup horizon
	DefaultTimezone string        // default UTC
	ListLimit       int           // default 100, hard cap for List

	// Now is the clock seam; tests inject a fake
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.CleanupEvery <= 0 {
		c.CleanupEvery = 10 * time.Minute
	}
	if c.StatsEvery <= 0 {
		c.StatsEvery = 5 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = time.Hour
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "UTC"
	}
	if c.ListLimit <= 0 {
		c.ListLimit = 100
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Scheduler owns the in-memory time index and alarm table, the durable
// mirror, and the tick worker that publishes trigger events.
// A single mutex guards index + table; only the tick worker publishes
type Scheduler struct {
	cfg   Config
	log   logger.Logger
	store repo.Storage
	bus   bus.Bus

	mu    sync.Mutex
	table map[string]domain.Alarm
	index *timeIndex
	state domain.SchedulerState

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs an Idle scheduler
func New(store repo.Storage, b bus.Bus, log logger.Logger, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		cfg:   cfg,
		log:   log,
		store: store,
		bus:   b,
		table: make(map[string]domain.Alarm),
		index: newTimeIndex(),
		state: domain.StateIdle,
	}
}

// buildAlarm validates req and derives the full alarm record
func (s *Scheduler) buildAlarm(req domain.ScheduleRequest) (domain.Alarm, error) {
	var zero domain.Alarm

	localTime := strings.TrimSpace(req.Time)
	tod, err := clock.ParseTimeOfDay(localTime)
	if err != nil {
		return zero, err
	}
	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}
	days, err := clock.NormalizeDays(req.DaysOfWeek)
	if err != nil {
		return zero, err
	}
	// utc_time is fixed at ingest; it is not recomputed on DST transitions
	utc, err := clock.LocalToUTC(tod, tz, s.cfg.Now())
	if err != nil {
		return zero, err
	}

	now := s.cfg.Now().UTC()
	return domain.Alarm{
		CodeID:      req.CodeID,
		Email:       req.Email,
		LocalTime:   localTime,
		UTCTime:     utc.String(),
		IsRecurring: req.IsRecurring,
		DaysOfWeek:  days,
		Timezone:    tz,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Schedule implements domain.SchedulerPort
func (s *Scheduler) Schedule(ctx context.Context, req domain.ScheduleRequest) (domain.Alarm, error) {
	var zero domain.Alarm

	a, err := s.buildAlarm(req)
	if err != nil {
		return zero, err
	}

	// Store first so a duplicate PK surfaces before memory mutation
	if err := s.store.Insert(ctx, a); err != nil {
		return zero, err
	}

	s.mu.Lock()
	s.insertLocked(a)
	s.mu.Unlock()

	s.log.Info().
		Str("alarm_id", a.ID()).
		Str("utc_time", a.UTCTime).
		Str("timezone", a.Timezone).
		Bool("recurring", a.IsRecurring).
		Msg("alarm scheduled")
	return a, nil
}

// Update implements domain.SchedulerPort: rewrites an existing alarm's
// mutable fields, recomputing utc_time on today's date
func (s *Scheduler) Update(ctx context.Context, req domain.ScheduleRequest) (domain.Alarm, error) {
	var zero domain.Alarm

	a, err := s.buildAlarm(req)
	if err != nil {
		return zero, err
	}

	ok, err := s.store.Update(ctx, a)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, perr.NotFoundf("alarm %s", a.ID())
	}

	s.mu.Lock()
	if old, exists := s.table[a.ID()]; exists {
		a.CreatedAt = old.CreatedAt
	}
	s.insertLocked(a)
	s.mu.Unlock()

	s.log.Info().
		Str("alarm_id", a.ID()).
		Str("utc_time", a.UTCTime).
		Msg("alarm updated")
	return a, nil
}

// Unschedule implements domain.SchedulerPort.
// An absent alarm is success with found=false, never an error
func (s *Scheduler) Unschedule(ctx context.Context, codeID, email, localTime string) (bool, error) {
	n, err := s.store.Delete(ctx, codeID, email, localTime)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	removed := s.removeLocked(domain.AlarmID(codeID, email, localTime))
	s.mu.Unlock()

	return n > 0 || removed, nil
}

// List implements domain.SchedulerPort, reading the durable mirror for
// stable (code_id, email, local_time) ordering
func (s *Scheduler) List(ctx context.Context, limit, offset int) ([]domain.Alarm, error) {
	if limit <= 0 || limit > s.cfg.ListLimit {
		limit = s.cfg.ListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

// Jobs returns a snapshot of the in-memory table ordered by identity
func (s *Scheduler) Jobs() []domain.Alarm {
	s.mu.Lock()
	out := make([]domain.Alarm, 0, len(s.table))
	for _, a := range s.table {
		out = append(out, a)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CodeID != out[j].CodeID {
			return out[i].CodeID < out[j].CodeID
		}
		if out[i].Email != out[j].Email {
			return out[i].Email < out[j].Email
		}
		return out[i].LocalTime < out[j].LocalTime
	})
	return out
}

// Count implements domain.SchedulerPort
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}

// Clear implements domain.SchedulerPort; the store is untouched
func (s *Scheduler) Clear() {
	s.mu.Lock()
	s.table = make(map[string]domain.Alarm)
	s.index.clear()
	s.mu.Unlock()
	s.log.Info().Msg("in-memory alarms cleared")
}

// Reload implements domain.SchedulerPort: clears memory and rebuilds it from
// the store. Rows that fail conversion are logged and skipped, never aborting
// the reload
func (s *Scheduler) Reload(ctx context.Context) (int, error) {
	rows, err := s.store.SelectAll(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.table = make(map[string]domain.Alarm, len(rows))
	s.index.clear()

	loaded := 0
	for _, a := range rows {
		if err := s.normalizeRow(&a); err != nil {
			s.log.Warn().
				Err(err).
				Str("code_id", a.CodeID).
				Str("email", a.Email).
				Str("time", a.LocalTime).
				Msg("skipping alarm row on reload")
			continue
		}
		s.insertLocked(a)
		loaded++
	}
	s.log.Info().Int("loaded", loaded).Int("rows", len(rows)).Msg("alarms reloaded")
	return loaded, nil
}

// normalizeRow validates a store row and fills derived fields before indexing
func (s *Scheduler) normalizeRow(a *domain.Alarm) error {
	tod, err := clock.ParseTimeOfDay(a.LocalTime)
	if err != nil {
		return err
	}
	if a.Timezone == "" {
		a.Timezone = s.cfg.DefaultTimezone
	}
	if _, err := clock.LoadZone(a.Timezone); err != nil {
		return err
	}
	days, err := clock.NormalizeDays(a.DaysOfWeek)
	if err != nil {
		return err
	}
	a.DaysOfWeek = days
	if a.UTCTime == "" {
		utc, err := clock.LocalToUTC(tod, a.Timezone, s.cfg.Now())
		if err != nil {
			return err
		}
		a.UTCTime = utc.String()
	} else if _, err := clock.ParseTimeOfDay(a.UTCTime); err != nil {
		return err
	}
	return nil
}

// DueAt returns every alarm indexed at now's UTC HH:MM:SS whose weekday mask,
// evaluated in the alarm's own timezone, matches. O(k) in returned alarms
func (s *Scheduler) DueAt(nowUTC time.Time) []domain.Alarm {
	u := nowUTC.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.index.at(u.Hour(), u.Minute(), u.Second())
	if len(ids) == 0 {
		return nil
	}
	out := make([]domain.Alarm, 0, len(ids))
	for _, id := range ids {
		a, ok := s.table[id]
		if !ok {
			continue
		}
		day, err := clock.WeekdayAbbrev(u, a.Timezone)
		if err != nil {
			s.log.Warn().Err(err).Str("alarm_id", id).Msg("weekday eval failed")
			continue
		}
		if clock.DayInMask(day, a.DaysOfWeek) {
			out = append(out, a)
		}
	}
	return out
}

// Stats implements domain.SchedulerPort
func (s *Scheduler) Stats() domain.IndexStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := s.index.slots()
	return domain.IndexStats{
		TotalAlarms: len(s.table),
		Slots:       slots,
		PerHour:     s.index.perHour(),
		// per-entry id string plus map node overhead, coarse on purpose
		ApproxBytes: s.index.size*96 + slots*48,
	}
}

// SetDescription implements domain.SchedulerPort
func (s *Scheduler) SetDescription(ctx context.Context, codeID, description string) error {
	codeID = strings.TrimSpace(codeID)
	description = strings.TrimSpace(description)
	if codeID == "" || description == "" {
		return perr.Validationf("code_id and description are required")
	}
	return s.store.UpsertDescription(ctx, codeID, description)
}

// Descriptions implements domain.SchedulerPort
func (s *Scheduler) Descriptions(ctx context.Context) (map[string]string, error) {
	return s.store.ListDescriptions(ctx)
}

// State implements domain.SchedulerPort
func (s *Scheduler) State() domain.SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the tick worker (Idle -> Running)
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != domain.StateIdle {
		s.mu.Unlock()
		return perr.Conflictf("scheduler already %s", s.state)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = domain.StateRunning
	s.mu.Unlock()

	go s.run(runCtx)
	s.log.Info().Dur("tick", s.cfg.TickInterval).Msg("scheduler started")
	return nil
}

// Stop joins the tick worker. Idempotent; safe to call from any state
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != domain.StateRunning {
		s.state = domain.StateStopped
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.state = domain.StateStopped
	s.mu.Unlock()
	s.log.Info().Msg("scheduler stopped")
}

// run is the tick loop: due lookup + publish every second, cleanup sweep
// every CleanupEvery, stats every StatsEvery. Per-iteration failures are
// logged; the loop never exits on error
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	lastCleanup := s.cfg.Now()
	lastStats := s.cfg.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeIteration(ctx, &lastCleanup, &lastStats)
		}
	}
}

func (s *Scheduler) safeIteration(ctx context.Context, lastCleanup, lastStats *time.Time) {
	defer func() {
		if v := recover(); v != nil {
			s.log.Error().Interface("panic", v).Msg("tick iteration panicked")
		}
	}()

	now := s.cfg.Now().UTC()
	s.Tick(ctx, now)

	if now.Sub(*lastCleanup) >= s.cfg.CleanupEvery {
		removed := s.Cleanup(now)
		if removed > 0 {
			s.log.Info().Int("removed", removed).Msg("stale one-shot cleanup")
		}
		*lastCleanup = now
	}
	if now.Sub(*lastStats) >= s.cfg.StatsEvery {
		st := s.Stats()
		s.log.Info().
			Int("total_alarms", st.TotalAlarms).
			Int("slots", st.Slots).
			Interface("per_hour", st.PerHour).
			Msg("scheduler stats")
		*lastStats = now
	}
}

// Tick performs one loop iteration at nowUTC: publishes an AlarmEvent per due
// alarm and drops fired one-shots from memory (the processor owns the store
// delete). Returns the number of fired alarms
func (s *Scheduler) Tick(ctx context.Context, nowUTC time.Time) int {
	due := s.DueAt(nowUTC)
	for _, a := range due {
		ev := domain.AlarmEvent{
			EventID:     uuid.NewString(),
			AlarmID:     a.ID(),
			CodeID:      a.CodeID,
			Email:       a.Email,
			LocalTime:   a.LocalTime,
			UTCTime:     a.UTCTime,
			TriggeredAt: nowUTC,
			IsRecurring: a.IsRecurring,
			Timezone:    a.Timezone,
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			s.log.Error().Err(err).Str("alarm_id", ev.AlarmID).Msg("event marshal failed")
			continue
		}
		// Fire-and-forget: a failed publish is logged and dropped; recurring
		// alarms retry naturally on the next matching day
		if err := s.bus.Publish(ctx, bus.TopicAlarmEvents, payload); err != nil {
			s.log.Error().Err(err).Str("alarm_id", ev.AlarmID).Msg("event publish failed")
		} else {
			s.log.Info().
				Str("alarm_id", ev.AlarmID).
				Str("event_id", ev.EventID).
				Msg("alarm fired")
		}
		if !a.IsRecurring {
			s.mu.Lock()
			s.removeLocked(a.ID())
			s.mu.Unlock()
		}
	}
	return len(due)
}

// Cleanup removes one-shot alarms whose today-in-UTC instant passed more than
// StaleAfter ago. They fired already or were missed during downtime; this is
// the safety net against DST residue and skew
func (s *Scheduler) Cleanup(nowUTC time.Time) int {
	u := nowUTC.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, a := range s.table {
		if a.IsRecurring {
			continue
		}
		tod, err := clock.ParseTimeOfDay(a.UTCTime)
		if err != nil {
			continue
		}
		instant := clock.UTCInstantToday(tod, u)
		if u.Sub(instant) > s.cfg.StaleAfter {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

// insertLocked adds a to table and index; caller holds mu.
// An existing entry with the same id is re-indexed
func (s *Scheduler) insertLocked(a domain.Alarm) {
	id := a.ID()
	if old, ok := s.table[id]; ok {
		if tod, err := clock.ParseTimeOfDay(old.UTCTime); err == nil {
			s.index.remove(tod.Hour, tod.Minute, tod.Second, id)
		}
	}
	tod, err := clock.ParseTimeOfDay(a.UTCTime)
	if err != nil {
		// callers validate before inserting; drop rather than corrupt the index
		s.log.Error().Str("alarm_id", id).Str("utc_time", a.UTCTime).Msg("refusing to index bad utc_time")
		return
	}
	s.table[id] = a
	s.index.add(tod.Hour, tod.Minute, tod.Second, id)
}

// removeLocked drops id from table and index; caller holds mu
func (s *Scheduler) removeLocked(id string) bool {
	a, ok := s.table[id]
	if !ok {
		return false
	}
	delete(s.table, id)
	if tod, err := clock.ParseTimeOfDay(a.UTCTime); err == nil {
		s.index.remove(tod.Hour, tod.Minute, tod.Second, id)
	}
	return true
}
