package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"chime/internal/platform/bus"
	perr "chime/internal/platform/errors"
	"chime/internal/services/alarms/domain"

	"github.com/rs/zerolog"
)

// mondayUTC is a fixed reference instant: Monday 2026-01-12, outside any DST
// transition in the zones the tests use
var mondayUTC = time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)

// fakeStore is an in-memory repo.Storage keyed by alarm identity
type fakeStore struct {
	mu         sync.Mutex
	rows       map[string]domain.Alarm
	descs      map[string]string
	insertErr  error
	lastLimit  int
	lastOffset int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]domain.Alarm), descs: make(map[string]string)}
}

func (f *fakeStore) EnsureSchema(context.Context) error { return nil }

func (f *fakeStore) Insert(_ context.Context, a domain.Alarm) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.rows[a.ID()]; ok {
		return perr.DuplicateKeyf("alarm %s exists", a.ID())
	}
	f.rows[a.ID()] = a
	return nil
}

func (f *fakeStore) Update(_ context.Context, a domain.Alarm) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[a.ID()]; !ok {
		return false, nil
	}
	f.rows[a.ID()] = a
	return true, nil
}

func (f *fakeStore) Delete(_ context.Context, codeID, email, localTime string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := domain.AlarmID(codeID, email, localTime)
	if _, ok := f.rows[id]; !ok {
		return 0, nil
	}
	delete(f.rows, id)
	return 1, nil
}

func (f *fakeStore) DeleteAll(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.rows))
	f.rows = make(map[string]domain.Alarm)
	return n, nil
}

func (f *fakeStore) SelectAll(context.Context) ([]domain.Alarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Alarm, 0, len(f.rows))
	for _, a := range f.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (f *fakeStore) List(ctx context.Context, limit, offset int) ([]domain.Alarm, error) {
	f.mu.Lock()
	f.lastLimit, f.lastOffset = limit, offset
	f.mu.Unlock()
	all, _ := f.SelectAll(ctx)
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStore) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

func (f *fakeStore) GetDescription(_ context.Context, codeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.descs[codeID]
	if !ok {
		return "", perr.NotFoundf("code description %q", codeID)
	}
	return d, nil
}

func (f *fakeStore) UpsertDescription(_ context.Context, codeID, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descs[codeID] = description
	return nil
}

func (f *fakeStore) ListDescriptions(context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.descs))
	for k, v := range f.descs {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) seed(a domain.Alarm) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[a.ID()] = a
}

// captureBus records publishes so Tick assertions stay synchronous
type captureBus struct {
	mu        sync.Mutex
	published []capturedMsg
	pubErr    error
}

type capturedMsg struct {
	topic   string
	payload []byte
}

func (c *captureBus) Publish(_ context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubErr != nil {
		return c.pubErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.published = append(c.published, capturedMsg{topic: topic, payload: cp})
	return nil
}

func (c *captureBus) Subscribe(ctx context.Context, _ string, _ bus.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *captureBus) Ping(context.Context) error { return nil }
func (c *captureBus) Close() error               { return nil }

func (c *captureBus) messages(topic string) []capturedMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []capturedMsg
	for _, m := range c.published {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func newTestScheduler(now time.Time) (*Scheduler, *fakeStore, *captureBus) {
	store := newFakeStore()
	cb := &captureBus{}
	s := New(store, cb, zerolog.Nop(), Config{Now: func() time.Time { return now }})
	return s, store, cb
}

func mustSchedule(t *testing.T, s *Scheduler, req domain.ScheduleRequest) domain.Alarm {
	t.Helper()
	a, err := s.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule(%+v): %v", req, err)
	}
	return a
}

func TestScheduleComputesUTCAndIndexes(t *testing.T) {
	s, store, _ := newTestScheduler(mondayUTC)

	a := mustSchedule(t, s, domain.ScheduleRequest{
		CodeID:      "C-100",
		Email:       "ops@example.com",
		Time:        "09:00",
		Timezone:    "America/Los_Angeles",
		IsRecurring: true,
	})

	if a.UTCTime != "17:00:00" {
		t.Fatalf("UTCTime = %q, want 17:00:00", a.UTCTime)
	}
	if a.DaysOfWeek != "Mon,Tue,Wed,Thu,Fri,Sat,Sun" {
		t.Fatalf("DaysOfWeek = %q, want all days", a.DaysOfWeek)
	}
	if a.ID() != "alarm_C-100_ops@example.com_09:00" {
		t.Fatalf("ID = %q", a.ID())
	}
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1", s.Count())
	}
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Fatalf("store count = %d, want 1", n)
	}

	due := s.DueAt(time.Date(2026, 1, 12, 17, 0, 0, 0, time.UTC))
	if len(due) != 1 || due[0].ID() != a.ID() {
		t.Fatalf("DueAt = %+v, want the scheduled alarm", due)
	}
	if due := s.DueAt(time.Date(2026, 1, 12, 17, 0, 1, 0, time.UTC)); len(due) != 0 {
		t.Fatalf("DueAt one second late = %+v, want empty", due)
	}
}

func TestScheduleRejectsBadInput(t *testing.T) {
	s, store, _ := newTestScheduler(mondayUTC)
	base := domain.ScheduleRequest{CodeID: "C-1", Email: "a@b.com", Time: "09:00"}

	cases := []struct {
		name string
		mut  func(*domain.ScheduleRequest)
	}{
		{"bad time", func(r *domain.ScheduleRequest) { r.Time = "25:00" }},
		{"bad format", func(r *domain.ScheduleRequest) { r.Time = "9am" }},
		{"bad timezone", func(r *domain.ScheduleRequest) { r.Timezone = "Mars/Olympus" }},
		{"bad weekday", func(r *domain.ScheduleRequest) { r.DaysOfWeek = "Funday" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mut(&req)
			_, err := s.Schedule(context.Background(), req)
			if !perr.IsCode(err, perr.ErrorCodeValidation) {
				t.Fatalf("err = %v, want validation code", err)
			}
		})
	}
	if s.Count() != 0 {
		t.Fatalf("Count = %d after rejected requests, want 0", s.Count())
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("store count = %d, want 0", n)
	}
}

func TestScheduleDuplicateSurfacesConflict(t *testing.T) {
	s, _, _ := newTestScheduler(mondayUTC)
	req := domain.ScheduleRequest{CodeID: "C-1", Email: "a@b.com", Time: "09:00", IsRecurring: true}

	mustSchedule(t, s, req)
	_, err := s.Schedule(context.Background(), req)
	if !perr.IsCode(err, perr.ErrorCodeDuplicateKey) {
		t.Fatalf("err = %v, want duplicate key code", err)
	}
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1", s.Count())
	}
}

func TestUpdateMovesIndexSlot(t *testing.T) {
	s, _, _ := newTestScheduler(mondayUTC)
	mustSchedule(t, s, domain.ScheduleRequest{
		CodeID: "C-1", Email: "a@b.com", Time: "09:00", Timezone: "UTC", IsRecurring: true,
	})

	a, err := s.Update(context.Background(), domain.ScheduleRequest{
		CodeID: "C-1", Email: "a@b.com", Time: "09:00",
		Timezone: "America/Los_Angeles", DaysOfWeek: "Mon", IsRecurring: true,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if a.UTCTime != "17:00:00" || a.DaysOfWeek != "Mon" {
		t.Fatalf("updated alarm = %+v", a)
	}
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1", s.Count())
	}
	if due := s.DueAt(time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)); len(due) != 0 {
		t.Fatalf("old slot still due: %+v", due)
	}
	if due := s.DueAt(time.Date(2026, 1, 12, 17, 0, 0, 0, time.UTC)); len(due) != 1 {
		t.Fatal("new slot not due")
	}
}

func TestUpdateUnknownAlarm(t *testing.T) {
	s, _, _ := newTestScheduler(mondayUTC)
	_, err := s.Update(context.Background(), domain.ScheduleRequest{
		CodeID: "C-9", Email: "a@b.com", Time: "09:00",
	})
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestDescriptionsRoundTrip(t *testing.T) {
	s, _, _ := newTestScheduler(mondayUTC)

	if err := s.SetDescription(context.Background(), "C-100", "Boiler pressure high"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDescription(context.Background(), "", "x"); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	all, err := s.Descriptions(context.Background())
	if err != nil || all["C-100"] != "Boiler pressure high" {
		t.Fatalf("descriptions = (%v, %v)", all, err)
	}
}

func TestUnschedule(t *testing.T) {
	s, store, _ := newTestScheduler(mondayUTC)
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-1", Email: "a@b.com", Time: "09:00"})

	found, err := s.Unschedule(context.Background(), "C-1", "a@b.com", "09:00")
	if err != nil || !found {
		t.Fatalf("Unschedule = (%v, %v), want (true, nil)", found, err)
	}
	if s.Count() != 0 {
		t.Fatalf("Count = %d, want 0", s.Count())
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("store count = %d, want 0", n)
	}

	// absent alarm is success, not an error
	found, err = s.Unschedule(context.Background(), "C-1", "a@b.com", "09:00")
	if err != nil || found {
		t.Fatalf("second Unschedule = (%v, %v), want (false, nil)", found, err)
	}
}

func TestTickPublishesAndDropsOneShots(t *testing.T) {
	s, _, cb := newTestScheduler(mondayUTC)
	oneShot := mustSchedule(t, s, domain.ScheduleRequest{
		CodeID: "C-1", Email: "once@example.com", Time: "12:30",
	})
	recurring := mustSchedule(t, s, domain.ScheduleRequest{
		CodeID: "C-2", Email: "daily@example.com", Time: "12:30", IsRecurring: true,
	})

	at := time.Date(2026, 1, 12, 12, 30, 0, 0, time.UTC)
	fired := s.Tick(context.Background(), at)
	if fired != 2 {
		t.Fatalf("fired = %d, want 2", fired)
	}

	msgs := cb.messages(bus.TopicAlarmEvents)
	if len(msgs) != 2 {
		t.Fatalf("published %d events, want 2", len(msgs))
	}
	seen := make(map[string]domain.AlarmEvent)
	eventIDs := make(map[string]bool)
	for _, m := range msgs {
		var ev domain.AlarmEvent
		if err := json.Unmarshal(m.payload, &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		if ev.EventID == "" {
			t.Fatal("empty event_id")
		}
		eventIDs[ev.EventID] = true
		seen[ev.AlarmID] = ev
	}
	if len(eventIDs) != 2 {
		t.Fatal("event ids not unique per fire")
	}
	ev, ok := seen[oneShot.ID()]
	if !ok {
		t.Fatalf("no event for %s", oneShot.ID())
	}
	if ev.CodeID != "C-1" || ev.Email != "once@example.com" || ev.UTCTime != "12:30:00" || !ev.TriggeredAt.Equal(at) {
		t.Fatalf("event = %+v", ev)
	}

	// one-shot leaves memory after firing, recurring stays
	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].ID() != recurring.ID() {
		t.Fatalf("jobs after tick = %+v, want only the recurring alarm", jobs)
	}

	// next matching time fires the recurring alarm again
	if fired := s.Tick(context.Background(), at.Add(24*time.Hour)); fired != 1 {
		t.Fatalf("second-day fired = %d, want 1", fired)
	}
}

func TestTickPublishFailureKeepsAlarm(t *testing.T) {
	s, _, cb := newTestScheduler(mondayUTC)
	cb.pubErr = bus.ErrClosed
	mustSchedule(t, s, domain.ScheduleRequest{
		CodeID: "C-1", Email: "a@b.com", Time: "12:30", IsRecurring: true,
	})

	at := time.Date(2026, 1, 12, 12, 30, 0, 0, time.UTC)
	if fired := s.Tick(context.Background(), at); fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want recurring alarm retained", s.Count())
	}
}

func TestDueAtFiltersWeekdayInAlarmZone(t *testing.T) {
	// Monday 23:00 UTC is already Tuesday morning in Tokyo
	now := time.Date(2026, 1, 12, 23, 0, 0, 0, time.UTC)
	s, _, _ := newTestScheduler(now)

	mustSchedule(t, s, domain.ScheduleRequest{
		CodeID: "C-1", Email: "tue@example.com", Time: "08:30",
		Timezone: "Asia/Tokyo", DaysOfWeek: "Tue", IsRecurring: true,
	})
	mustSchedule(t, s, domain.ScheduleRequest{
		CodeID: "C-1", Email: "mon@example.com", Time: "08:30",
		Timezone: "Asia/Tokyo", DaysOfWeek: "Mon", IsRecurring: true,
	})

	due := s.DueAt(time.Date(2026, 1, 12, 23, 30, 0, 0, time.UTC))
	if len(due) != 1 || due[0].Email != "tue@example.com" {
		t.Fatalf("due = %+v, want only the Tue alarm", due)
	}
}

func TestReloadRebuildsAndSkipsBadRows(t *testing.T) {
	s, store, _ := newTestScheduler(mondayUTC)
	now := mondayUTC.UTC()

	store.seed(domain.Alarm{
		CodeID: "C-1", Email: "a@b.com", LocalTime: "06:15",
		Timezone: "UTC", DaysOfWeek: "mon,fri", IsRecurring: true,
		CreatedAt: now, UpdatedAt: now,
	})
	store.seed(domain.Alarm{
		CodeID: "C-2", Email: "a@b.com", LocalTime: "99:99",
		Timezone: "UTC", IsRecurring: true,
	})
	store.seed(domain.Alarm{
		CodeID: "C-3", Email: "a@b.com", LocalTime: "07:00",
		Timezone: "Mars/Olympus", IsRecurring: true,
	})

	loaded, err := s.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if loaded != 1 {
		t.Fatalf("loaded = %d, want 1", loaded)
	}
	jobs := s.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %+v, want 1", jobs)
	}
	// empty utc_time is recomputed and the weekday mask canonicalized
	if jobs[0].UTCTime != "06:15:00" {
		t.Fatalf("UTCTime = %q, want 06:15:00", jobs[0].UTCTime)
	}
	if jobs[0].DaysOfWeek != "Mon,Fri" {
		t.Fatalf("DaysOfWeek = %q, want Mon,Fri", jobs[0].DaysOfWeek)
	}
	if due := s.DueAt(time.Date(2026, 1, 12, 6, 15, 0, 0, time.UTC)); len(due) != 1 {
		t.Fatalf("reloaded alarm not indexed, due = %+v", due)
	}
}

func TestReloadReplacesPreviousMemory(t *testing.T) {
	s, store, _ := newTestScheduler(mondayUTC)
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-1", Email: "a@b.com", Time: "09:00"})

	// row deleted behind the scheduler's back disappears on reload
	if _, err := store.Delete(context.Background(), "C-1", "a@b.com", "09:00"); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.Reload(context.Background())
	if err != nil || loaded != 0 {
		t.Fatalf("Reload = (%d, %v), want (0, nil)", loaded, err)
	}
	if s.Count() != 0 {
		t.Fatalf("Count = %d, want 0", s.Count())
	}
}

func TestCleanupRemovesStaleOneShots(t *testing.T) {
	s, _, _ := newTestScheduler(mondayUTC)
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-1", Email: "stale@example.com", Time: "10:00"})
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-2", Email: "fresh@example.com", Time: "11:30"})
	mustSchedule(t, s, domain.ScheduleRequest{
		CodeID: "C-3", Email: "daily@example.com", Time: "10:00", IsRecurring: true,
	})

	removed := s.Cleanup(time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC))
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	for _, a := range s.Jobs() {
		if a.Email == "stale@example.com" {
			t.Fatal("stale one-shot survived cleanup")
		}
	}
	if s.Count() != 2 {
		t.Fatalf("Count = %d, want 2", s.Count())
	}
}

func TestClearLeavesStoreIntact(t *testing.T) {
	s, store, _ := newTestScheduler(mondayUTC)
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-1", Email: "a@b.com", Time: "09:00"})

	s.Clear()
	if s.Count() != 0 {
		t.Fatalf("Count = %d, want 0", s.Count())
	}
	if st := s.Stats(); st.Slots != 0 || st.TotalAlarms != 0 {
		t.Fatalf("stats after clear = %+v", st)
	}
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Fatalf("store count = %d, want 1", n)
	}
}

func TestJobsSortedByIdentity(t *testing.T) {
	s, _, _ := newTestScheduler(mondayUTC)
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-2", Email: "a@b.com", Time: "09:00"})
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-1", Email: "z@b.com", Time: "09:00"})
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-1", Email: "a@b.com", Time: "10:00"})
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-1", Email: "a@b.com", Time: "09:00"})

	jobs := s.Jobs()
	var got []string
	for _, a := range jobs {
		got = append(got, a.CodeID+"/"+a.Email+"/"+a.LocalTime)
	}
	want := []string{"C-1/a@b.com/09:00", "C-1/a@b.com/10:00", "C-1/z@b.com/09:00", "C-2/a@b.com/09:00"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("jobs order = %v, want %v", got, want)
	}
}

func TestListClampsPaging(t *testing.T) {
	s, store, _ := newTestScheduler(mondayUTC)

	if _, err := s.List(context.Background(), 0, -5); err != nil {
		t.Fatal(err)
	}
	if store.lastLimit != 100 || store.lastOffset != 0 {
		t.Fatalf("paging = (%d, %d), want (100, 0)", store.lastLimit, store.lastOffset)
	}
	if _, err := s.List(context.Background(), 500, 2); err != nil {
		t.Fatal(err)
	}
	if store.lastLimit != 100 || store.lastOffset != 2 {
		t.Fatalf("paging = (%d, %d), want (100, 2)", store.lastLimit, store.lastOffset)
	}
}

func TestStats(t *testing.T) {
	s, _, _ := newTestScheduler(mondayUTC)
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-1", Email: "a@b.com", Time: "17:00"})
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-2", Email: "a@b.com", Time: "17:00"})
	mustSchedule(t, s, domain.ScheduleRequest{CodeID: "C-3", Email: "a@b.com", Time: "03:15"})

	st := s.Stats()
	if st.TotalAlarms != 3 || st.Slots != 2 {
		t.Fatalf("stats = %+v, want 3 alarms in 2 slots", st)
	}
	if st.PerHour[17] != 2 || st.PerHour[3] != 1 {
		t.Fatalf("per_hour = %v", st.PerHour)
	}
}

func TestLifecycle(t *testing.T) {
	store := newFakeStore()
	cb := &captureBus{}
	s := New(store, cb, zerolog.Nop(), Config{TickInterval: time.Millisecond})

	if s.State() != domain.StateIdle {
		t.Fatalf("state = %s, want idle", s.State())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != domain.StateRunning {
		t.Fatalf("state = %s, want running", s.State())
	}
	if err := s.Start(context.Background()); !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("second Start err = %v, want conflict", err)
	}

	s.Stop()
	if s.State() != domain.StateStopped {
		t.Fatalf("state = %s, want stopped", s.State())
	}
	s.Stop() // idempotent
}

func TestStopFromIdle(t *testing.T) {
	s, _, _ := newTestScheduler(mondayUTC)
	s.Stop()
	if s.State() != domain.StateStopped {
		t.Fatalf("state = %s, want stopped", s.State())
	}
}
