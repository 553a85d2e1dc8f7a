package session

import (
	"fmt"
	"time"

	"intraday-scanner/internal/store"
)

// Phase identifies where the current time falls in the trading day.
type Phase int

const (
	PhaseClosed Phase = iota
	PhasePreOpen
	PhaseOpening
	PhaseEntryWindow
	PhaseContinuous
	PhaseNoNewEntries
	PhaseSquareOff
)

func (p Phase) String() string {
	switch p {
	case PhasePreOpen:
		return "PRE_OPEN"
	case PhaseOpening:
		return "OPENING"
	case PhaseEntryWindow:
		return "ENTRY_WINDOW"
	case PhaseContinuous:
		return "CONTINUOUS"
	case PhaseNoNewEntries:
		return "NO_NEW_ENTRIES"
	case PhaseSquareOff:
		return "SQUARE_OFF"
	default:
		return "CLOSED"
	}
}

// IST is the exchange timezone.
var IST = time.FixedZone("IST", 19800)

// Clock maps wall time onto the session phase calendar. Boundaries come from
// configuration; times are minutes since midnight IST.
type Clock struct {
	preOpen       int
	open          int
	entryWindow   int
	continuous    int
	noNewEntries  int
	advisoryExit  int
	mandatoryExit int
	close         int
}

// NewClock builds a session clock from configured HH:MM boundaries.
func NewClock(cfg *store.Config) (*Clock, error) {
	c := &Clock{}
	for _, b := range []struct {
		dst *int
		val string
	}{
		{&c.preOpen, cfg.Session.PreOpenStart},
		{&c.open, cfg.Session.MarketOpen},
		{&c.entryWindow, cfg.Session.EntryWindowStart},
		{&c.continuous, cfg.Session.ContinuousStart},
		{&c.noNewEntries, cfg.Session.NoNewEntries},
		{&c.advisoryExit, cfg.Session.AdvisoryExit},
		{&c.mandatoryExit, cfg.Session.MandatoryExit},
		{&c.close, cfg.Session.MarketClose},
	} {
		m, err := parseMinutes(b.val)
		if err != nil {
			return nil, err
		}
		*b.dst = m
	}
	return c, nil
}

func parseMinutes(hhmm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid session time %q: %w", hhmm, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid session time %q", hhmm)
	}
	return h*60 + m, nil
}

// PhaseAt returns the session phase for the given time.
func (c *Clock) PhaseAt(t time.Time) Phase {
	ist := t.In(IST)
	if wd := ist.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return PhaseClosed
	}
	min := ist.Hour()*60 + ist.Minute()
	switch {
	case min < c.preOpen || min >= c.close:
		return PhaseClosed
	case min < c.open:
		return PhasePreOpen
	case min < c.entryWindow:
		return PhaseOpening
	case min < c.continuous:
		return PhaseEntryWindow
	case min < c.noNewEntries:
		return PhaseContinuous
	case min < c.advisoryExit:
		return PhaseNoNewEntries
	default:
		return PhaseSquareOff
	}
}

// AllowsNewSignals reports whether the phase admits new signal generation.
// Exit monitoring runs in every phase regardless.
func (p Phase) AllowsNewSignals() bool {
	switch p {
	case PhaseOpening, PhaseEntryWindow, PhaseContinuous:
		return true
	default:
		return false
	}
}

// AdvisoryExitDue reports whether the end-of-session advisory window has begun.
func (c *Clock) AdvisoryExitDue(t time.Time) bool {
	ist := t.In(IST)
	min := ist.Hour()*60 + ist.Minute()
	return min >= c.advisoryExit && min < c.close
}

// MandatoryExitDue reports whether all open trades must be closed.
func (c *Clock) MandatoryExitDue(t time.Time) bool {
	ist := t.In(IST)
	min := ist.Hour()*60 + ist.Minute()
	return min >= c.mandatoryExit && min < c.close
}

// MarketClose returns the configured close time on the given time's day
// in IST.
func (c *Clock) MarketClose(t time.Time) time.Time {
	return Midnight(t).Add(time.Duration(c.close) * time.Minute)
}

// Midnight returns midnight IST for the given time's day, used to scope
// session counters.
func Midnight(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
}
