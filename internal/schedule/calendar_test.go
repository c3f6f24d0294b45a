package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := NewCalendar(Config{
		Timezone:          "America/New_York",
		HorizonDays:       14,
		ClosedDays:        []string{"Sunday"},
		CapacityPerWindow: 2,
		Windows: []WindowSpec{
			{Name: "morning", StartHour: 8, EndHour: 12},
			{Name: "afternoon", StartHour: 12, EndHour: 16},
			{Name: "evening", StartHour: 16, EndHour: 19},
		},
	})
	require.NoError(t, err)
	return cal
}

// Wednesday, October 15th 2025, 10:00 local.
func testNow(cal *Calendar) time.Time {
	return time.Date(2025, time.October, 15, 10, 0, 0, 0, cal.Location())
}

func TestNewCalendar_Errors(t *testing.T) {
	_, err := NewCalendar(Config{Timezone: "Mars/Olympus", Windows: []WindowSpec{{Name: "morning", StartHour: 8, EndHour: 12}}})
	assert.Error(t, err)

	_, err = NewCalendar(Config{})
	assert.Error(t, err)

	_, err = NewCalendar(Config{ClosedDays: []string{"funday"}, Windows: []WindowSpec{{Name: "morning", StartHour: 8, EndHour: 12}}})
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	cal := testCalendar(t)
	now := testNow(cal)
	date := func(m time.Month, d int) time.Time {
		return time.Date(2025, m, d, 0, 0, 0, 0, cal.Location())
	}

	tests := []struct {
		phrase string
		want   time.Time
	}{
		{"today please", date(time.October, 15)},
		{"Tomorrow.", date(time.October, 16)},
		{"the day after tomorrow", date(time.October, 17)},
		{"how about Friday", date(time.October, 17)},
		{"Wednesday", date(time.October, 22)},
		{"next Monday works", date(time.October, 20)},
		{"October 21st", date(time.October, 21)},
		{"on oct 18", date(time.October, 18)},
		{"10/24", date(time.October, 24)},
		{"the 25th", date(time.October, 25)},
		{"October twenty first", date(time.October, 21)},
		{"the 20th of October", date(time.October, 20)},
		{"the twenty first of October", date(time.October, 21)},
		{"not Monday, Tuesday works", date(time.October, 21)},
		{"I may be home on the twenty first", date(time.October, 21)},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, err := cal.ParseDate(tt.phrase, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestParseDate_SameAnswerEveryTime(t *testing.T) {
	cal := testCalendar(t)
	now := testNow(cal)

	first, err := cal.ParseDate("Monday or Thursday, whichever", now)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		got, err := cal.ParseDate("Monday or Thursday, whichever", now)
		require.NoError(t, err)
		require.True(t, first.Equal(got), "run %d: %s != %s", i, got, first)
	}
}

func TestParseDate_Rejections(t *testing.T) {
	cal := testCalendar(t)
	now := testNow(cal)

	_, err := cal.ParseDate("sometime soon", now)
	assert.ErrorIs(t, err, ErrUnrecognizedDate)

	_, err = cal.ParseDate("December 20th", now)
	assert.ErrorIs(t, err, ErrBeyondHorizon)

	_, err = cal.ParseDate("Sunday", now)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = cal.ParseDate("February 30", now)
	assert.ErrorIs(t, err, ErrUnrecognizedDate)
}

func TestParseWindow(t *testing.T) {
	cal := testCalendar(t)

	tests := []struct {
		phrase string
		want   Window
	}{
		{"morning", "morning"},
		{"In the afternoon please", "afternoon"},
		{"evening", "evening"},
		{"10 am", "morning"},
		{"around 2:30 p.m.", "afternoon"},
		{"3 o'clock", "afternoon"},
		{"noon", "afternoon"},
		{"sometime before noon", "morning"},
		{"by noon if you can", "morning"},
		{"after work", "evening"},
		{"first thing", "morning"},
		{"anytime is fine", WindowAny},
		{"doesn't matter", WindowAny},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, err := cal.ParseWindow(tt.phrase)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := cal.ParseWindow("7 pm")
	assert.ErrorIs(t, err, ErrOutsideHours)

	_, err = cal.ParseWindow("whatever the weather")
	assert.ErrorIs(t, err, ErrUnrecognizedTime)
}

func TestIsSoonest(t *testing.T) {
	assert.True(t, IsSoonest("As soon as possible"))
	assert.True(t, IsSoonest("whatever's the earliest"))
	assert.False(t, IsSoonest("Friday"))
}

func TestOpenDates(t *testing.T) {
	cal := testCalendar(t)
	dates := cal.OpenDates(testNow(cal))

	// 15 days from Oct 15 through Oct 29 minus the two Sundays.
	assert.Len(t, dates, 13)
	for _, d := range dates {
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestSpokenForms(t *testing.T) {
	cal := testCalendar(t)
	now := testNow(cal)

	assert.Equal(t, "Tuesday, October 21st", SpokenDate(time.Date(2025, time.October, 21, 0, 0, 0, 0, cal.Location())))
	assert.Equal(t, "Saturday, October 11th", SpokenDate(time.Date(2025, time.October, 11, 0, 0, 0, 0, cal.Location())))
	assert.Equal(t, "tomorrow", cal.RelativeDate(cal.Today(now).AddDate(0, 0, 1), now))
	assert.Equal(t, "today", cal.RelativeDate(cal.Today(now), now))

	spec, ok := cal.Spec("morning")
	require.True(t, ok)
	assert.Equal(t, "8 AM to noon", spec.Spoken())
	evening, _ := cal.Spec("evening")
	assert.Equal(t, "4 PM to 7 PM", evening.Spoken())
}

func TestWindowStarted(t *testing.T) {
	cal := testCalendar(t)
	now := testNow(cal)
	today := cal.Today(now)

	morning, _ := cal.Spec("morning")
	afternoon, _ := cal.Spec("afternoon")
	assert.True(t, cal.WindowStarted(today, morning, now))
	assert.False(t, cal.WindowStarted(today, afternoon, now))
}
