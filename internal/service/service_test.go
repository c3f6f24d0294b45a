package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
	"github.com/devrev/hvac-voice-agent/internal/knowledge"
	"github.com/devrev/hvac-voice-agent/internal/model"
	"github.com/devrev/hvac-voice-agent/internal/resilience"
	"github.com/devrev/hvac-voice-agent/internal/schedule"
	"github.com/devrev/hvac-voice-agent/internal/session"
	"github.com/devrev/hvac-voice-agent/internal/speech"
	"github.com/devrev/hvac-voice-agent/internal/store"
	"github.com/devrev/hvac-voice-agent/internal/twiml"
)

type countingRecorder struct {
	mu         sync.Mutex
	turns      int
	duplicates int
	timeouts   int
	abandoned  int
	bookings   int
	failures   int
}

func (r *countingRecorder) RecordTurn(string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns++
}

func (r *countingRecorder) RecordDuplicateWebhook() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.duplicates++
}

func (r *countingRecorder) RecordLockTimeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts++
}

func (r *countingRecorder) RecordAbandoned() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned++
}

func (r *countingRecorder) RecordBooking(_ bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings++
	if err != nil {
		r.failures++
	}
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor("test", resilience.RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}, resilience.BreakerConfig{}, nil)
}

type fixture struct {
	conv     *ConversationService
	calls    *CallService
	sessions *session.MemoryStore
	db       *store.MemoryStore
	recorder *countingRecorder
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cal, err := schedule.NewCalendar(schedule.Config{
		Timezone:          "America/New_York",
		HorizonDays:       14,
		ClosedDays:        []string{"sunday"},
		CapacityPerWindow: 2,
		Windows: []schedule.WindowSpec{
			{Name: "morning", StartHour: 8, EndHour: 12},
			{Name: "afternoon", StartHour: 12, EndHour: 16},
		},
	})
	require.NoError(t, err)
	// Wednesday, October 15th 2025, 10:00 local.
	now := time.Date(2025, time.October, 15, 10, 0, 0, 0, cal.Location())

	f := &fixture{
		sessions: session.NewMemoryStore(time.Hour, 200*time.Millisecond),
		db:       store.NewMemoryStore(),
		recorder: &countingRecorder{},
		now:      now,
	}

	machine := dialog.NewMachine(dialog.Config{CompanyName: "Comfort Air"}, dialog.Deps{
		Calendar:  cal,
		Booker:    NewBooker(f.db, testExecutor(), f.recorder),
		Knowledge: knowledge.NewBase(knowledge.Defaults(knowledge.Business{CompanyName: "Comfort Air"})),
		Now:       func() time.Time { return now },
	})
	voice := speech.NewVoice(speech.VoiceConfig{}, nil, speech.NewAudioCache(8, 0), nil, nil, nil)
	renderer := twiml.NewRenderer(twiml.Config{PublicBaseURL: "https://agent.example.com"})

	f.calls = NewCallService(f.sessions, f.db, nil, testExecutor(), f.recorder, nil)
	f.calls.now = func() time.Time { return now.Add(5 * time.Minute) }
	f.conv = NewConversationService(machine, f.sessions, voice, renderer, f.calls,
		ConversationConfig{TurnTimeout: 5 * time.Second, MinConfidence: 0.3}, f.recorder, nil)
	f.conv.now = func() time.Time { return now }
	return f
}

func (f *fixture) gather(t *testing.T, turn int, speech string) string {
	t.Helper()
	doc, err := f.conv.Continue(context.Background(), Gather{CallSID: "CA1", Speech: speech, Confidence: 0.9, Turn: turn})
	require.NoError(t, err)
	return doc
}

func (f *fixture) session(t *testing.T) *dialog.Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), "CA1")
	require.NoError(t, err)
	return s
}

func TestConversation_BeginAndReplay(t *testing.T) {
	f := newFixture(t)
	call := InboundCall{CallSID: "CA1", From: "+15551234567", To: "+15550000000"}

	doc, err := f.conv.Begin(context.Background(), call)
	require.NoError(t, err)
	assert.Contains(t, doc, "Thanks for calling Comfort Air")
	assert.Contains(t, doc, "/voice/gather?turn=1")

	s := f.session(t)
	assert.Equal(t, dialog.StateIdentifyNeed, s.State)
	assert.Equal(t, 1, s.Turn)
	assert.Equal(t, "+15551234567", s.From)

	again, err := f.conv.Begin(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
	assert.Equal(t, 1, f.recorder.duplicates)
	assert.Equal(t, 1, f.session(t).Turn)
}

func TestConversation_RedeliveredGatherIsReplayed(t *testing.T) {
	f := newFixture(t)
	_, err := f.conv.Begin(context.Background(), InboundCall{CallSID: "CA1", From: "+15551234567"})
	require.NoError(t, err)

	first := f.gather(t, 1, "I need to schedule a repair")
	assert.Contains(t, first, "full name")
	assert.Contains(t, first, "turn=2")

	replay := f.gather(t, 1, "I need to schedule a repair")
	assert.Equal(t, first, replay)
	assert.Equal(t, 1, f.recorder.duplicates)

	s := f.session(t)
	assert.Equal(t, dialog.StateCollectName, s.State)
	assert.Equal(t, 2, s.Turn)
}

func TestConversation_LowConfidenceCountsAsNoInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.conv.Begin(context.Background(), InboundCall{CallSID: "CA1"})
	require.NoError(t, err)
	f.gather(t, 1, "schedule a repair")

	doc, err := f.conv.Continue(context.Background(), Gather{CallSID: "CA1", Speech: "Jane Doe", Confidence: 0.1, Turn: 2})
	require.NoError(t, err)
	assert.Contains(t, doc, "didn't catch that")

	s := f.session(t)
	assert.Equal(t, dialog.StateCollectName, s.State)
	assert.Equal(t, 1, s.NoInputCount)
	assert.Empty(t, s.Booking.Name)
}

func TestConversation_UnknownCallRestarts(t *testing.T) {
	f := newFixture(t)
	doc := f.gather(t, 4, "hello?")
	assert.Contains(t, doc, "Thanks for calling Comfort Air")
	assert.Equal(t, dialog.StateIdentifyNeed, f.session(t).State)
}

func TestConversation_UnknownCallRestartKeepsCallerID(t *testing.T) {
	f := newFixture(t)
	_, err := f.conv.Continue(context.Background(), Gather{
		CallSID: "CA1",
		From:    "+15551234567",
		To:      "+15550000000",
		Speech:  "hello?",
		Turn:    4,
	})
	require.NoError(t, err)

	s := f.session(t)
	assert.Equal(t, "+15551234567", s.From)
	assert.Equal(t, "+15550000000", s.To)
}

func TestConversation_LockTimeout(t *testing.T) {
	f := newFixture(t)
	release, err := f.sessions.Lock(context.Background(), "CA1")
	require.NoError(t, err)
	defer release()

	_, err = f.conv.Continue(context.Background(), Gather{CallSID: "CA1", Speech: "hi", Turn: 1})
	assert.ErrorIs(t, err, session.ErrLockTimeout)
	assert.Equal(t, 1, f.recorder.timeouts)
}

func bookCall(t *testing.T, f *fixture) {
	t.Helper()
	_, err := f.conv.Begin(context.Background(), InboundCall{CallSID: "CA1", From: "+15551234567", To: "+15550000000"})
	require.NoError(t, err)

	turn := 1
	for _, said := range []string{
		"I need to schedule a repair, my furnace is not heating",
		"Jane Doe",
		"yes",
		"42 Elm Street",
		"Friday",
		"morning",
		"yes",
	} {
		f.gather(t, turn, said)
		turn++
	}
}

func TestConversation_BookingPersistsCallLog(t *testing.T) {
	f := newFixture(t)
	bookCall(t, f)

	s := f.session(t)
	require.Equal(t, dialog.OutcomeBooked, s.Outcome)
	require.NotEmpty(t, s.Booking.AppointmentID)

	appt, err := f.db.GetAppointment(context.Background(), s.Booking.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", appt.CustomerName)
	assert.Equal(t, "morning", appt.Window)
	assert.Equal(t, 1, f.recorder.bookings)

	log, err := f.db.GetCallLog(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "booked", log.Outcome)
	assert.Nil(t, log.EndedAt)
	assert.NotEmpty(t, log.Transcript)
}

func TestCallService_FinalizeBookedCall(t *testing.T) {
	f := newFixture(t)
	bookCall(t, f)

	require.NoError(t, f.calls.Finalize(context.Background(), CallStatus{CallSID: "CA1", CallStatus: "completed"}))

	log, err := f.db.GetCallLog(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "booked", log.Outcome)
	assert.Equal(t, "completed", log.CallStatus)
	require.NotNil(t, log.EndedAt)

	_, err = f.sessions.Get(context.Background(), "CA1")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Zero(t, f.recorder.abandoned)
}

func TestCallService_FinalizeMidCallIsAbandoned(t *testing.T) {
	f := newFixture(t)
	_, err := f.conv.Begin(context.Background(), InboundCall{CallSID: "CA1"})
	require.NoError(t, err)
	f.gather(t, 1, "schedule a repair")

	require.NoError(t, f.calls.Finalize(context.Background(), CallStatus{CallSID: "CA1", CallStatus: "completed"}))

	log, err := f.db.GetCallLog(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "abandoned", log.Outcome)
	assert.Equal(t, "collect_name", log.FinalState)
	assert.Equal(t, 1, f.recorder.abandoned)
}

func TestCallService_FinalizeUnknownCall(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.calls.Finalize(context.Background(), CallStatus{CallSID: "CA404", CallStatus: "completed"}))
}

type failingLogs struct {
	store.CallLogStore
}

func (failingLogs) UpsertCallLog(context.Context, *model.CallLog) error {
	return errors.New("database is down")
}

func TestCallService_FinalizeKeepsSessionWhenLogFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.conv.Begin(context.Background(), InboundCall{CallSID: "CA1"})
	require.NoError(t, err)

	calls := NewCallService(f.sessions, failingLogs{}, nil, testExecutor(), nil, nil)
	err = calls.Finalize(context.Background(), CallStatus{CallSID: "CA1", CallStatus: "completed"})
	assert.ErrorContains(t, err, "database is down")

	_, err = f.sessions.Get(context.Background(), "CA1")
	assert.NoError(t, err)
}

func TestCallService_SweepAbandoned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := dialog.NewSession("CA-stale", "+15551234567", "", f.now.Add(-2*time.Hour))
	stale.State = dialog.StateCollectAddress
	fresh := dialog.NewSession("CA-fresh", "+15557654321", "", f.now)
	require.NoError(t, f.sessions.Save(ctx, stale))
	require.NoError(t, f.sessions.Save(ctx, fresh))

	f.calls.now = func() time.Time { return f.now.Add(10 * time.Minute) }
	retired, err := f.calls.SweepAbandoned(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, retired)

	_, err = f.sessions.Get(ctx, "CA-stale")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.sessions.Get(ctx, "CA-fresh")
	assert.NoError(t, err)

	log, err := f.db.GetCallLog(ctx, "CA-stale")
	require.NoError(t, err)
	assert.Equal(t, "abandoned", log.Outcome)
	assert.Equal(t, "collect_address", log.FinalState)
}

type flakyAppointments struct {
	store.AppointmentStore
	failures int
	ids      []string
}

func (f *flakyAppointments) CreateAppointment(_ context.Context, appt *model.Appointment) error {
	f.ids = append(f.ids, appt.ID)
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return nil
}

func TestBooker_RetriesWithStableID(t *testing.T) {
	appts := &flakyAppointments{failures: 1}
	rec := &countingRecorder{}
	b := NewBooker(appts, testExecutor(), rec)

	appt := &model.Appointment{CustomerName: "Jane Doe"}
	require.NoError(t, b.CreateAppointment(context.Background(), appt))

	require.Len(t, appts.ids, 2)
	assert.NotEmpty(t, appts.ids[0])
	assert.Equal(t, appts.ids[0], appts.ids[1])
	assert.Equal(t, appt.ID, appts.ids[0])
	assert.Equal(t, 1, rec.bookings)
	assert.Zero(t, rec.failures)
}
