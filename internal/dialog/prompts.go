package dialog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devrev/hvac-voice-agent/internal/schedule"
)

// Prompts renders everything the agent says.
type Prompts struct {
	company  string
	calendar *schedule.Calendar
}

// NewPrompts creates the prompt set for a company.
func NewPrompts(company string, cal *schedule.Calendar) *Prompts {
	return &Prompts{company: company, calendar: cal}
}

func (p *Prompts) Greeting() string {
	return fmt.Sprintf("Thanks for calling %s. I can book a service visit or answer a quick question. How can I help you today?", p.company)
}

func (p *Prompts) AskNeed() string {
	return "Would you like to schedule a service visit, or do you have a question I can answer?"
}

func (p *Prompts) AskName() string {
	return "I can help you get that scheduled. Can I start with your full name?"
}

func (p *Prompts) AskPhone() string {
	return "What's the best phone number to reach you?"
}

// OfferCallerID asks whether the number the caller is calling from is the
// right contact number.
func (p *Prompts) OfferCallerID(name, phone string) string {
	if first := firstName(name); first != "" {
		return fmt.Sprintf("Thanks, %s. Is the number you're calling from, %s, the best number to reach you?", first, SpokenPhone(phone))
	}
	return fmt.Sprintf("Is the number you're calling from, %s, the best number to reach you?", SpokenPhone(phone))
}

func (p *Prompts) AskAddress() string {
	return "What's the address where you need service?"
}

func (p *Prompts) AskIssue() string {
	return "Briefly, what's going on with your heating or cooling system?"
}

func (p *Prompts) AskDate() string {
	return fmt.Sprintf("What day works best for the visit? I can book anything in the next %d days, or you can say as soon as possible.", p.calendar.HorizonDays())
}

func (p *Prompts) AskTime() string {
	return fmt.Sprintf("Which arrival window would you prefer: %s?", p.windowChoices(p.calendar.Windows()))
}

// AskTimeFrom offers only the windows still open on a day.
func (p *Prompts) AskTimeFrom(open []schedule.WindowSpec) string {
	if len(open) == 1 {
		return fmt.Sprintf("The only window left that day is the %s, %s. Does that work?", open[0].Name, open[0].Spoken())
	}
	return fmt.Sprintf("Which arrival window would you prefer: %s?", p.windowChoices(open))
}

func (p *Prompts) windowChoices(specs []schedule.WindowSpec) string {
	parts := make([]string, len(specs))
	for i, w := range specs {
		parts[i] = fmt.Sprintf("%s, %s", w.Name, w.Spoken())
	}
	return joinOr(parts)
}

// Confirm reads the booking back to the caller.
func (p *Prompts) Confirm(s *Session, now time.Time) string {
	b := s.Booking
	var sb strings.Builder
	sb.WriteString("Let me make sure I have everything. ")
	fmt.Fprintf(&sb, "%s, at %s, reachable at %s. ", b.Name, b.Address, SpokenPhone(b.Phone))
	fmt.Fprintf(&sb, "The problem is: %s. ", strings.TrimRight(b.Issue, "."))
	if s.Emergency {
		sb.WriteString("We'll dispatch a technician as soon as possible. ")
	} else {
		fmt.Fprintf(&sb, "A technician will arrive %s%s. ", p.calendar.RelativeDate(b.Date, now), p.windowPhrase(b.Window))
	}
	sb.WriteString("Is that all correct?")
	return sb.String()
}

func (p *Prompts) AskWhatToChange() string {
	return "No problem. What would you like to change: the name, phone number, address, problem, date, or time?"
}

// Booked confirms a completed booking and says goodbye.
func (p *Prompts) Booked(s *Session, now time.Time) string {
	if s.Emergency {
		return fmt.Sprintf("You're all set. Your emergency request is in and a technician will contact you shortly at %s. Thanks for calling %s. Goodbye.", SpokenPhone(s.Booking.Phone), p.company)
	}
	return fmt.Sprintf("You're all set. A technician will arrive %s%s. We'll call ahead when they're on the way. Thanks for calling %s. Goodbye.",
		p.calendar.RelativeDate(s.Booking.Date, now), p.windowPhrase(s.Booking.Window), p.company)
}

func (p *Prompts) Goodbye() string {
	return fmt.Sprintf("Thanks for calling %s. Goodbye.", p.company)
}

func (p *Prompts) NotHeard(question string) string {
	return "Sorry, I didn't catch that. " + question
}

func (p *Prompts) NoInputGoodbye() string {
	return fmt.Sprintf("I'm having trouble hearing you, so I'll let you go. Please call %s back any time. Goodbye.", p.company)
}

func (p *Prompts) NotUnderstood(question string) string {
	return "Sorry, I didn't quite get that. " + question
}

func (p *Prompts) GiveUpTransfer() string {
	return "Let me connect you with someone on our team who can help."
}

func (p *Prompts) GiveUp() string {
	return "I'm sorry I couldn't help over the phone. Please call back during business hours and a team member will take care of you. Goodbye."
}

func (p *Prompts) Transfer() string {
	return "Sure, connecting you with our on-call team now."
}

func (p *Prompts) NoTransfer(question string) string {
	return "Our team isn't available to take the call right now, but I can get you booked. " + question
}

func (p *Prompts) EmergencyTransfer(h Hazard) string {
	return h.Instructions + " I'm connecting you with our on-call technician now."
}

func (p *Prompts) EmergencyFlagged(h Hazard, question string) string {
	return h.Instructions + " I'm marking this as an emergency so we send someone as soon as possible. " + question
}

func (p *Prompts) BookingFailed() string {
	return "I'm sorry, I wasn't able to save your appointment just now. A team member will call you back shortly to finish booking. Goodbye."
}

func (p *Prompts) DateRejected(err error, question string) string {
	switch {
	case errors.Is(err, schedule.ErrDateInPast):
		return "That date has already passed. " + question
	case errors.Is(err, schedule.ErrBeyondHorizon):
		return fmt.Sprintf("We can only book up to %d days out. %s", p.calendar.HorizonDays(), question)
	case errors.Is(err, schedule.ErrClosed):
		return "We're closed that day. " + question
	default:
		return "Sorry, I didn't catch the date. You can say something like tomorrow, Friday, or October 21st."
	}
}

func (p *Prompts) DateFull(day, next time.Time, now time.Time) string {
	if next.IsZero() {
		return fmt.Sprintf("Sorry, we're fully booked %s and I don't see an opening in the next %d days. Please call back tomorrow and we'll find you a time.",
			p.calendar.RelativeDate(day, now), p.calendar.HorizonDays())
	}
	return fmt.Sprintf("Sorry, we're fully booked %s. The next opening is %s. What day would you like?",
		p.calendar.RelativeDate(day, now), p.calendar.RelativeDate(next, now))
}

func (p *Prompts) NoAvailability() string {
	return fmt.Sprintf("I'm sorry, we don't have any openings in the next %d days. Please call back tomorrow and we'll find you a time. Goodbye.", p.calendar.HorizonDays())
}

func (p *Prompts) TimeRejected(err error, open []schedule.WindowSpec) string {
	if errors.Is(err, schedule.ErrOutsideHours) {
		return "That's outside our arrival windows. " + p.AskTimeFrom(open)
	}
	return "Sorry, I didn't catch the time. " + p.AskTimeFrom(open)
}

func (p *Prompts) WindowFull(w schedule.WindowSpec, open []schedule.WindowSpec) string {
	return fmt.Sprintf("Sorry, the %s window is full that day. %s", w.Name, p.AskTimeFrom(open))
}

func (p *Prompts) WindowTaken(open []schedule.WindowSpec) string {
	return "Sorry, that window was just taken by another customer. " + p.AskTimeFrom(open)
}

// Static returns the prompts that never vary within a deployment, for
// audio prewarming and review.
func (p *Prompts) Static() []string {
	return []string{
		p.Greeting(),
		p.AskNeed(),
		p.AskName(),
		p.AskPhone(),
		p.AskAddress(),
		p.AskIssue(),
		p.AskDate(),
		p.AskTime(),
		p.AskWhatToChange(),
		p.Goodbye(),
		p.NotHeard(p.AskNeed()),
		p.NoInputGoodbye(),
		p.GiveUpTransfer(),
		p.GiveUp(),
		p.Transfer(),
		p.BookingFailed(),
	}
}

func (p *Prompts) windowPhrase(w schedule.Window) string {
	spec, ok := p.calendar.Spec(w)
	if !ok {
		return ""
	}
	return fmt.Sprintf(" in the %s, between %s", spec.Name, strings.Replace(spec.Spoken(), " to ", " and ", 1))
}

// SpokenPhone groups a US number for text-to-speech, e.g. "5 5 5, 1 2 3, 4 5 6 7".
func SpokenPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return phone
	}
	spaced := func(s string) string {
		return strings.Join(strings.Split(s, ""), " ")
	}
	return fmt.Sprintf("%s, %s, %s", spaced(digits[:3]), spaced(digits[3:6]), spaced(digits[6:]))
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func joinOr(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " or " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], "; ") + "; or " + parts[len(parts)-1]
	}
}
