package dialog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/extract"
	"github.com/devrev/hvac-voice-agent/internal/knowledge"
	"github.com/devrev/hvac-voice-agent/internal/model"
	"github.com/devrev/hvac-voice-agent/internal/schedule"
)

// WindowASAP is the window recorded on emergency dispatches.
const WindowASAP schedule.Window = "asap"

// Booker reads window capacity and writes appointments.
type Booker interface {
	CountAppointments(ctx context.Context, date time.Time, window string) (int, error)
	CreateAppointment(ctx context.Context, appt *model.Appointment) error
}

// Observer is notified of conversation progress.
type Observer interface {
	Transition(from, to State)
	Finished(outcome Outcome)
	Extraction(source string, err error)
}

type nopObserver struct{}

func (nopObserver) Transition(State, State)  {}
func (nopObserver) Finished(Outcome)         {}
func (nopObserver) Extraction(string, error) {}

// Config holds conversation limits and company details.
type Config struct {
	CompanyName  string
	OnCallNumber string
	MaxNoInput   int
	MaxRetries   int
	// MaxLLMCalls caps LLM extractions per call; zero means no cap.
	MaxLLMCalls int
}

// Deps are the collaborators the machine consults while stepping.
type Deps struct {
	Calendar  *schedule.Calendar
	Booker    Booker
	Knowledge *knowledge.Base
	// LLM is optional; the heuristic extractor always runs.
	LLM      extract.Extractor
	Observer Observer
	Logger   *zap.Logger
	Now      func() time.Time
}

// Machine drives one conversation turn at a time. It holds no per-call
// state, so a single Machine serves every call.
type Machine struct {
	cfg       Config
	prompts   *Prompts
	calendar  *schedule.Calendar
	booker    Booker
	faq       *knowledge.Base
	heuristic extract.Extractor
	llm       extract.Extractor
	observer  Observer
	logger    *zap.Logger
	now       func() time.Time
}

// NewMachine creates a conversation state machine.
func NewMachine(cfg Config, deps Deps) *Machine {
	if cfg.MaxNoInput <= 0 {
		cfg.MaxNoInput = 3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Knowledge == nil {
		deps.Knowledge = knowledge.NewBase(nil)
	}

	return &Machine{
		cfg:       cfg,
		prompts:   NewPrompts(cfg.CompanyName, deps.Calendar),
		calendar:  deps.Calendar,
		booker:    deps.Booker,
		faq:       deps.Knowledge,
		heuristic: extract.NewHeuristic(),
		llm:       deps.LLM,
		observer:  deps.Observer,
		logger:    deps.Logger,
		now:       deps.Now,
	}
}

// Prompts returns the machine's prompt set.
func (m *Machine) Prompts() *Prompts {
	return m.prompts
}

// Start plays the greeting and waits for the caller's need.
func (m *Machine) Start(s *Session) Reply {
	now := m.now()
	s.UpdatedAt = now
	m.transition(s, StateIdentifyNeed)
	return m.respond(s, Reply{Text: m.prompts.Greeting(), Listen: true, Hints: m.hints(StateIdentifyNeed)})
}

// Step consumes one caller utterance and returns the agent's reply. The
// session is mutated in place and must be saved by the caller.
func (m *Machine) Step(ctx context.Context, s *Session, utterance string) Reply {
	now := m.now()
	s.UpdatedAt = now
	text := strings.TrimSpace(utterance)

	if s.Finished() {
		return m.respond(s, Reply{Text: m.prompts.Goodbye(), Hangup: true})
	}
	if s.State == StateGreeting {
		return m.Start(s)
	}
	if text == "" {
		return m.noInput(s)
	}

	s.NoInputCount = 0
	s.record(model.SpeakerCaller, text, now)

	if !s.Emergency {
		if hazard, ok := DetectHazard(text); ok {
			return m.emergency(s, hazard, text)
		}
	}

	// A FAQ answer re-asked the interrupted question; this utterance answers it.
	if s.State == StateFAQ {
		m.transition(s, s.ResumeState)
		s.ResumeState = ""
	}

	slots := m.extract(ctx, s, text, now)

	if slots.Intent == extract.IntentEmergency && !s.Emergency {
		return m.emergency(s, HazardFor("general"), text)
	}

	switch {
	case slots.Intent == extract.IntentGoodbye && s.State != StateConfirm:
		m.transition(s, StateComplete)
		m.finish(s, OutcomeCompleted)
		return m.respond(s, Reply{Text: m.prompts.Goodbye(), Hangup: true})

	case slots.Intent == extract.IntentHuman:
		if m.cfg.OnCallNumber != "" {
			m.finish(s, OutcomeTransferred)
			return m.respond(s, Reply{Text: m.prompts.Transfer(), Dial: m.cfg.OnCallNumber})
		}
		return m.ask(s, m.prompts.NoTransfer(m.question(s, s.State)))
	}

	if reply, ok := m.answerFAQ(s, text, slots); ok {
		return reply
	}

	switch s.State {
	case StateIdentifyNeed:
		return m.identifyNeed(s, slots)
	case StateCollectName:
		if slots.Name == "" {
			return m.retry(s, m.prompts.NotUnderstood(m.question(s, s.State)))
		}
		s.Booking.Name = slots.Name
		return m.advance(s, now)
	case StateCollectPhone:
		return m.collectPhone(s, slots, now)
	case StateCollectAddress:
		if slots.Address == "" {
			return m.retry(s, "Sorry, I need the street number and street name. "+m.question(s, s.State))
		}
		s.Booking.Address = slots.Address
		return m.advance(s, now)
	case StateCollectIssue:
		if slots.Issue == "" {
			return m.retry(s, m.prompts.NotUnderstood(m.question(s, s.State)))
		}
		s.Booking.Issue = slots.Issue
		return m.advance(s, now)
	case StateCollectDate:
		return m.collectDate(ctx, s, text, slots, now)
	case StateCollectTime:
		return m.collectTime(ctx, s, text, slots, now)
	case StateConfirm:
		return m.confirm(ctx, s, text, slots, now)
	default:
		m.logger.Warn("Step in unexpected state",
			zap.String("call_sid", s.CallSID),
			zap.String("state", string(s.State)))
		return m.advance(s, now)
	}
}

func (m *Machine) identifyNeed(s *Session, slots extract.Slots) Reply {
	if slots.Intent != extract.IntentSchedule && slots.Answer != extract.AnswerYes {
		return m.retry(s, m.prompts.NotUnderstood(m.prompts.AskNeed()))
	}
	if slots.Issue != "" && s.Booking.Issue == "" {
		s.Booking.Issue = slots.Issue
	}
	if slots.Name != "" {
		s.Booking.Name = slots.Name
	}
	return m.advance(s, m.now())
}

func (m *Machine) collectPhone(s *Session, slots extract.Slots, now time.Time) Reply {
	switch {
	case slots.Phone != "":
		s.Booking.Phone = slots.Phone
		return m.advance(s, now)
	case s.PhoneOffered && slots.Answer == extract.AnswerYes:
		s.Booking.Phone = extract.ExtractPhone(s.From)
		return m.advance(s, now)
	case s.PhoneOffered && slots.Answer == extract.AnswerNo:
		s.PhoneOffered = false
		s.CallerIDDeclined = true
		return m.ask(s, m.prompts.AskPhone())
	default:
		return m.retry(s, "Sorry, I need a ten digit phone number. "+m.prompts.AskPhone())
	}
}

func (m *Machine) collectDate(ctx context.Context, s *Session, text string, slots extract.Slots, now time.Time) Reply {
	if schedule.IsSoonest(text) {
		day, open := m.firstAvailable(ctx, now)
		if day.IsZero() {
			m.transition(s, StateComplete)
			m.finish(s, OutcomeFailed)
			return m.respond(s, Reply{Text: m.prompts.NoAvailability(), Hangup: true})
		}
		s.Booking.Date = day
		m.pickWindowFrom(s, text, open)
		return m.advance(s, now)
	}

	phrase := slots.Date
	if phrase == "" {
		phrase = text
	}
	day, err := m.calendar.ParseDate(phrase, now)
	if err != nil && phrase != text {
		day, err = m.calendar.ParseDate(text, now)
	}
	if err != nil {
		return m.retry(s, m.prompts.DateRejected(err, m.prompts.AskDate()))
	}

	open := m.openWindows(ctx, day, now)
	if len(open) == 0 {
		next, _ := m.firstAvailableAfter(ctx, day, now)
		return m.retry(s, m.prompts.DateFull(day, next, now))
	}

	s.Booking.Date = day
	m.pickWindowFrom(s, text, open)
	return m.advance(s, now)
}

// pickWindowFrom records a window named in the same breath as the date,
// e.g. "tomorrow morning", when it is open.
func (m *Machine) pickWindowFrom(s *Session, text string, open []schedule.WindowSpec) {
	w, err := m.calendar.ParseWindow(text)
	if err != nil {
		return
	}
	if w == schedule.WindowAny {
		s.Booking.Window = open[0].Name
		return
	}
	for _, spec := range open {
		if spec.Name == w {
			s.Booking.Window = w
			return
		}
	}
}

func (m *Machine) collectTime(ctx context.Context, s *Session, text string, slots extract.Slots, now time.Time) Reply {
	open := m.openWindows(ctx, s.Booking.Date, now)
	if len(open) == 0 {
		day := s.Booking.Date
		s.Booking.Date = time.Time{}
		m.transition(s, StateCollectDate)
		next, _ := m.firstAvailableAfter(ctx, day, now)
		return m.ask(s, m.prompts.DateFull(day, next, now))
	}

	// "Yes" to a single remaining window accepts it.
	if len(open) == 1 && slots.Answer == extract.AnswerYes {
		s.Booking.Window = open[0].Name
		return m.advance(s, now)
	}

	phrase := slots.Time
	if phrase == "" {
		phrase = text
	}
	w, err := m.calendar.ParseWindow(phrase)
	if err != nil && phrase != text {
		w, err = m.calendar.ParseWindow(text)
	}
	if err != nil {
		return m.retry(s, m.prompts.TimeRejected(err, open))
	}

	if w == schedule.WindowAny {
		s.Booking.Window = open[0].Name
		return m.advance(s, now)
	}
	for _, spec := range open {
		if spec.Name == w {
			s.Booking.Window = w
			return m.advance(s, now)
		}
	}

	spec, _ := m.calendar.Spec(w)
	return m.retry(s, m.prompts.WindowFull(spec, open))
}

func (m *Machine) confirm(ctx context.Context, s *Session, text string, slots extract.Slots, now time.Time) Reply {
	if slots.Answer != extract.AnswerYes {
		if target, ok := changeTarget(text); ok {
			m.clearFor(s, target)
			m.transition(s, target)
			s.RetryCount = 0
			return m.ask(s, "Okay. "+m.question(s, target))
		}
	}

	switch slots.Answer {
	case extract.AnswerYes:
		return m.book(ctx, s, now)
	case extract.AnswerNo:
		return m.ask(s, m.prompts.AskWhatToChange())
	default:
		if slots.Intent == extract.IntentGoodbye {
			return m.ask(s, m.prompts.AskWhatToChange())
		}
		return m.retry(s, m.prompts.NotUnderstood("Is everything I read back correct?"))
	}
}

func (m *Machine) book(ctx context.Context, s *Session, now time.Time) Reply {
	appt := &model.Appointment{
		CallSID:      s.CallSID,
		CustomerName: s.Booking.Name,
		Phone:        s.Booking.Phone,
		Address:      s.Booking.Address,
		Issue:        s.Booking.Issue,
		Date:         s.Booking.Date,
		Window:       string(s.Booking.Window),
		Emergency:    s.Emergency,
		Status:       model.AppointmentScheduled,
	}

	if s.Emergency {
		appt.Date = m.calendar.Today(now)
		appt.Window = string(WindowASAP)
	} else {
		count, err := m.booker.CountAppointments(ctx, s.Booking.Date, string(s.Booking.Window))
		if err == nil && count >= m.calendar.Capacity() {
			s.Booking.Window = ""
			open := m.openWindows(ctx, s.Booking.Date, now)
			if len(open) == 0 {
				s.Booking.Date = time.Time{}
				m.transition(s, StateCollectDate)
				return m.ask(s, "Sorry, that day just filled up. "+m.prompts.AskDate())
			}
			m.transition(s, StateCollectTime)
			return m.ask(s, m.prompts.WindowTaken(open))
		}
	}

	if err := m.booker.CreateAppointment(ctx, appt); err != nil {
		m.logger.Error("Failed to create appointment",
			zap.String("call_sid", s.CallSID),
			zap.Error(err))
		m.transition(s, StateComplete)
		m.finish(s, OutcomeFailed)
		return m.respond(s, Reply{Text: m.prompts.BookingFailed(), Hangup: true})
	}

	s.Booking.AppointmentID = appt.ID
	m.logger.Info("Appointment booked",
		zap.String("call_sid", s.CallSID),
		zap.String("appointment_id", appt.ID),
		zap.Bool("emergency", s.Emergency))

	m.transition(s, StateComplete)
	if s.Emergency {
		m.finish(s, OutcomeEmergency)
	} else {
		m.finish(s, OutcomeBooked)
	}
	return m.respond(s, Reply{Text: m.prompts.Booked(s, now), Hangup: true})
}

func (m *Machine) emergency(s *Session, hazard Hazard, text string) Reply {
	s.Emergency = true
	s.Hazard = hazard.Kind
	if s.Booking.Issue == "" {
		s.Booking.Issue = text
	}
	m.logger.Warn("Emergency detected",
		zap.String("call_sid", s.CallSID),
		zap.String("hazard", hazard.Kind),
		zap.String("state", string(s.State)))

	if s.State == StateFAQ {
		s.State = s.ResumeState
		s.ResumeState = ""
	}
	m.transition(s, StateEmergency)

	if m.cfg.OnCallNumber != "" {
		m.finish(s, OutcomeEmergency)
		return m.respond(s, Reply{Text: m.prompts.EmergencyTransfer(hazard), Dial: m.cfg.OnCallNumber})
	}

	next := m.nextSlotState(s)
	m.enter(s, next)
	return m.respond(s, Reply{
		Text:   m.prompts.EmergencyFlagged(hazard, m.question(s, next)),
		Listen: true,
		Hints:  m.hints(next),
	})
}

func (m *Machine) answerFAQ(s *Session, text string, slots extract.Slots) (Reply, bool) {
	if s.State == StateIdentifyNeed {
		if slots.Intent == extract.IntentSchedule {
			return Reply{}, false
		}
	} else if !extract.IsQuestion(text) {
		return Reply{}, false
	}

	entry, ok := m.faq.Match(text)
	if !ok {
		return Reply{}, false
	}

	resume := s.State
	m.transition(s, StateFAQ)
	s.ResumeState = resume
	s.RetryCount = 0
	return m.respond(s, Reply{
		Text:   entry.Answer + " " + m.followUp(s, resume),
		Listen: true,
		Hints:  m.hints(resume),
	}), true
}

func (m *Machine) followUp(s *Session, resume State) string {
	if resume == StateIdentifyNeed {
		return "Is there anything else I can answer, or would you like to schedule a visit?"
	}
	return "Now, " + lowerFirst(m.question(s, resume))
}

func (m *Machine) noInput(s *Session) Reply {
	s.NoInputCount++
	if s.NoInputCount >= m.cfg.MaxNoInput {
		m.finish(s, OutcomeNoInput)
		return m.respond(s, Reply{Text: m.prompts.NoInputGoodbye(), Hangup: true})
	}
	state := s.State
	if state == StateFAQ {
		state = s.ResumeState
	}
	return m.respond(s, Reply{Text: m.prompts.NotHeard(m.question(s, state)), Listen: true, Hints: m.hints(state)})
}

// retry re-asks after an unusable answer and gives up after too many.
func (m *Machine) retry(s *Session, text string) Reply {
	s.RetryCount++
	if s.RetryCount >= m.cfg.MaxRetries {
		m.logger.Info("Giving up after repeated unmatched answers",
			zap.String("call_sid", s.CallSID),
			zap.String("state", string(s.State)),
			zap.Int("retries", s.RetryCount))
		if m.cfg.OnCallNumber != "" {
			m.finish(s, OutcomeTransferred)
			return m.respond(s, Reply{Text: m.prompts.GiveUpTransfer(), Dial: m.cfg.OnCallNumber})
		}
		m.finish(s, OutcomeFailed)
		return m.respond(s, Reply{Text: m.prompts.GiveUp(), Hangup: true})
	}
	return m.ask(s, text)
}

// advance moves to the next unfilled slot, or to confirmation.
func (m *Machine) advance(s *Session, now time.Time) Reply {
	next := m.nextSlotState(s)
	m.enter(s, next)
	if next == StateConfirm {
		return m.respond(s, Reply{Text: m.prompts.Confirm(s, now), Listen: true, Hints: m.hints(next)})
	}
	return m.ask(s, m.question(s, next))
}

func (m *Machine) enter(s *Session, next State) {
	if next != s.State {
		s.RetryCount = 0
	}
	m.transition(s, next)
}

func (m *Machine) ask(s *Session, text string) Reply {
	return m.respond(s, Reply{Text: text, Listen: true, Hints: m.hints(s.State)})
}

func (m *Machine) nextSlotState(s *Session) State {
	b := s.Booking
	switch {
	case b.Name == "":
		return StateCollectName
	case b.Phone == "":
		return StateCollectPhone
	case b.Address == "":
		return StateCollectAddress
	case b.Issue == "":
		return StateCollectIssue
	case s.Emergency:
		return StateConfirm
	case !b.HasDate():
		return StateCollectDate
	case b.Window == "":
		return StateCollectTime
	default:
		return StateConfirm
	}
}

// question is the prompt that asks for state's answer.
func (m *Machine) question(s *Session, state State) string {
	switch state {
	case StateGreeting:
		return m.prompts.Greeting()
	case StateIdentifyNeed:
		return m.prompts.AskNeed()
	case StateCollectName:
		return m.prompts.AskName()
	case StateCollectPhone:
		if caller := extract.ExtractPhone(s.From); caller != "" && !s.CallerIDDeclined {
			s.PhoneOffered = true
			return m.prompts.OfferCallerID(s.Booking.Name, caller)
		}
		return m.prompts.AskPhone()
	case StateCollectAddress:
		return m.prompts.AskAddress()
	case StateCollectIssue:
		return m.prompts.AskIssue()
	case StateCollectDate:
		return m.prompts.AskDate()
	case StateCollectTime:
		return m.prompts.AskTime()
	case StateConfirm:
		return m.prompts.Confirm(s, m.now())
	case StateFAQ:
		return m.question(s, s.ResumeState)
	default:
		return ""
	}
}

func (m *Machine) hints(state State) []string {
	switch state {
	case StateIdentifyNeed:
		return []string{"schedule", "appointment", "repair", "maintenance", "hours", "pricing"}
	case StateCollectDate:
		return []string{"today", "tomorrow", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "as soon as possible"}
	case StateCollectTime:
		hints := []string{"any time"}
		for _, w := range m.calendar.Windows() {
			hints = append(hints, string(w.Name))
		}
		return hints
	case StateConfirm, StateCollectPhone:
		return []string{"yes", "no"}
	default:
		return nil
	}
}

func (m *Machine) extract(ctx context.Context, s *Session, text string, now time.Time) extract.Slots {
	req := extract.Request{State: string(s.State), Utterance: text, Now: now}
	base, _ := m.heuristic.Extract(ctx, req)

	if m.llm == nil {
		return base
	}
	if m.cfg.MaxLLMCalls > 0 && s.LLMCalls >= m.cfg.MaxLLMCalls {
		return base
	}

	s.LLMCalls++
	slots, err := m.llm.Extract(ctx, req)
	m.observer.Extraction("llm", err)
	if err != nil {
		m.logger.Warn("LLM extraction failed, using heuristics",
			zap.String("call_sid", s.CallSID),
			zap.String("state", string(s.State)),
			zap.Error(err))
		return base
	}
	return extract.Merge(slots, base)
}

func (m *Machine) openWindows(ctx context.Context, day time.Time, now time.Time) []schedule.WindowSpec {
	var open []schedule.WindowSpec
	for _, w := range m.calendar.Windows() {
		if m.calendar.WindowStarted(day, w, now) {
			continue
		}
		count, err := m.booker.CountAppointments(ctx, day, string(w.Name))
		if err != nil {
			// Capacity is re-checked at booking; keep the call moving.
			m.logger.Warn("Failed to count appointments",
				zap.String("date", day.Format(schedule.DateLayout)),
				zap.String("window", string(w.Name)),
				zap.Error(err))
			open = append(open, w)
			continue
		}
		if count < m.calendar.Capacity() {
			open = append(open, w)
		}
	}
	return open
}

func (m *Machine) firstAvailable(ctx context.Context, now time.Time) (time.Time, []schedule.WindowSpec) {
	for _, day := range m.calendar.OpenDates(now) {
		if open := m.openWindows(ctx, day, now); len(open) > 0 {
			return day, open
		}
	}
	return time.Time{}, nil
}

func (m *Machine) firstAvailableAfter(ctx context.Context, after time.Time, now time.Time) (time.Time, []schedule.WindowSpec) {
	for _, day := range m.calendar.OpenDates(now) {
		if !day.After(after) {
			continue
		}
		if open := m.openWindows(ctx, day, now); len(open) > 0 {
			return day, open
		}
	}
	return time.Time{}, nil
}

func (m *Machine) respond(s *Session, r Reply) Reply {
	s.Turn++
	last := r
	s.LastReply = &last
	s.record(model.SpeakerAgent, r.Text, m.now())
	return r
}

func (m *Machine) transition(s *Session, to State) {
	if s.State == to {
		return
	}
	from := s.State
	s.State = to
	m.observer.Transition(from, to)
	m.logger.Debug("Dialog transition",
		zap.String("call_sid", s.CallSID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}

func (m *Machine) finish(s *Session, outcome Outcome) {
	s.Outcome = outcome
	m.observer.Finished(outcome)
}

// clearFor empties the slot a collection state fills so it is asked again.
func (m *Machine) clearFor(s *Session, target State) {
	switch target {
	case StateCollectName:
		s.Booking.Name = ""
	case StateCollectPhone:
		s.Booking.Phone = ""
		s.PhoneOffered = false
		s.CallerIDDeclined = true
	case StateCollectAddress:
		s.Booking.Address = ""
	case StateCollectIssue:
		s.Booking.Issue = ""
	case StateCollectDate:
		s.Booking.Date = time.Time{}
		s.Booking.Window = ""
	case StateCollectTime:
		s.Booking.Window = ""
	}
}

var changeKeywords = []struct {
	state    State
	keywords []string
}{
	{StateCollectName, []string{"name", "spelled", "spelling"}},
	{StateCollectPhone, []string{"phone", "number"}},
	{StateCollectAddress, []string{"address", "street", "house"}},
	{StateCollectIssue, []string{"problem", "issue", "description"}},
	{StateCollectTime, []string{"time", "window", "morning", "afternoon", "evening"}},
	{StateCollectDate, []string{"date", "day"}},
}

// changeTarget finds which slot the caller wants to correct.
func changeTarget(text string) (State, bool) {
	padded := " " + normalizeText(text) + " "
	for _, c := range changeKeywords {
		if containsPhrase(padded, c.keywords) {
			return c.state, true
		}
	}
	return "", false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
