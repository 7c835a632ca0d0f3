package session

import (
	"time"

	"github.com/pkg/errors"
)

// Session — торговая сессия в момент времени.
type Session string

const (
	RTH    Session = "rth"     // регулярная сессия
	RTHExt Session = "rth_ext" // пре/пост-маркет и всё остальное
)

// Policy — пользовательский пин сессии.
type Policy string

const (
	PolicyAuto   Policy = "auto"
	PolicyRTH    Policy = "rth"
	PolicyRTHExt Policy = "rth_ext"
)

// Calendar — биржевой календарь. Чистые функции от времени,
// никакого I/O и мутабельного состояния: тестируется фиксированными метками.
type Calendar struct {
	loc *time.Location

	// минуты от полуночи локального биржевого времени
	rthOpenMin  int
	rthCloseMin int
	extOpenMin  int
	extCloseMin int
}

// NewCalendar — календарь NYSE-образной биржи: RTH 09:30–16:00,
// расширенное окно 04:00–20:00 локального времени.
func NewCalendar(tz string) (*Calendar, error) {
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "load exchange timezone %q", tz)
	}
	return &Calendar{
		loc:         loc,
		rthOpenMin:  9*60 + 30,
		rthCloseMin: 16 * 60,
		extOpenMin:  4 * 60,
		extCloseMin: 20 * 60,
	}, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Classify — RTH внутри регулярного окна буднего дня, иначе RTH_EXT.
func (c *Calendar) Classify(tsMs int64) Session {
	t := time.UnixMilli(tsMs).In(c.loc)
	if !isWeekday(t) {
		return RTHExt
	}
	m := minuteOfDay(t)
	if m >= c.rthOpenMin && m < c.rthCloseMin {
		return RTH
	}
	return RTHExt
}

// ResolveForUser — пользовательский пин перекрывает авто-классификацию.
func (c *Calendar) ResolveForUser(p Policy, tsMs int64) Session {
	switch p {
	case PolicyRTH:
		return RTH
	case PolicyRTHExt:
		return RTHExt
	default:
		return c.Classify(tsMs)
	}
}

// IsTradable — будний день и внутри расширенного окна.
func (c *Calendar) IsTradable(tsMs int64) bool {
	t := time.UnixMilli(tsMs).In(c.loc)
	if !isWeekday(t) {
		return false
	}
	m := minuteOfDay(t)
	return m >= c.extOpenMin && m < c.extCloseMin
}

// NextTransition — ближайшая граница сессии после tsMs и сессия,
// в которую происходит переход.
func (c *Calendar) NextTransition(tsMs int64) (int64, Session) {
	t := time.UnixMilli(tsMs).In(c.loc)
	for day := 0; day < 8; day++ {
		d := t.AddDate(0, 0, day)
		if !isWeekday(d) {
			continue
		}
		open := time.Date(d.Year(), d.Month(), d.Day(), c.rthOpenMin/60, c.rthOpenMin%60, 0, 0, c.loc)
		if open.UnixMilli() > tsMs {
			return open.UnixMilli(), RTH
		}
		cl := time.Date(d.Year(), d.Month(), d.Day(), c.rthCloseMin/60, c.rthCloseMin%60, 0, 0, c.loc)
		if cl.UnixMilli() > tsMs {
			return cl.UnixMilli(), RTHExt
		}
	}
	// недостижимо: в любых 8 днях есть будни
	return tsMs, RTHExt
}
