package infra

import (
	"time"

	"github.com/scmhub/calendar"
)

// exchangeMIC maps gateway exchange codes to ISO 10383 MIC codes understood
// by scmhub/calendar. Unknown exchanges fall back to the Mon-Fri rule.
var exchangeMIC = map[string]string{
	"NYSE":   "xnys",
	"NASDAQ": "xnas",
	"ARCA":   "arcx",
	"AMEX":   "xase",
	"SBF":    "xpar", // Euronext Paris
	"AEB":    "xams", // Euronext Amsterdam
	"ENEXT":  "xbru", // Euronext Brussels
	"BVL":    "xlis", // Euronext Lisbon
	"IBIS":   "xetr", // Xetra
	"FWB":    "xfra",
	"LSE":    "xlon",
	"LSEETF": "xlon",
	"BM":     "xmad",
	"BVME":   "xmil",
	"EBS":    "xswx", // SIX Swiss
	"VSE":    "xwbo",
	"SFB":    "xsto",
	"CPH":    "xcse",
	"HEX":    "xhel",
	"OSE":    "xosl",
	"TSE":    "xtse", // Toronto
	"TSEJ":   "xtks", // Tokyo
	"SEHK":   "xhkg",
	"ASX":    "xasx",
}

// ExchangeCalendar answers trading-day questions for one exchange. Used to
// classify empty history sub-windows: a hole made only of non-trading days
// is benign, anything else deserves a look.
type ExchangeCalendar struct {
	cal      *calendar.Calendar
	fallback bool
	loc      *time.Location
}

// CalendarFor returns the trading calendar for a gateway exchange code.
// Unknown or unmapped exchanges get a Mon-Fri fallback calendar.
func CalendarFor(exchange string) *ExchangeCalendar {
	mic, ok := exchangeMIC[exchange]
	if !ok {
		return &ExchangeCalendar{fallback: true, loc: time.UTC}
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		return &ExchangeCalendar{fallback: true, loc: time.UTC}
	}

	return &ExchangeCalendar{cal: cal, loc: cal.Loc}
}

// IsTradingDay reports whether the exchange trades on the given date
func (c *ExchangeCalendar) IsTradingDay(date time.Time) bool {
	if c.loc != nil {
		date = date.In(c.loc)
	}

	if c.fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}

	return c.cal.IsBusinessDay(date)
}

// AllNonTrading reports whether every calendar day in [start, end) is a
// non-trading day. An empty range reports false.
func (c *ExchangeCalendar) AllNonTrading(start, end time.Time) bool {
	if !end.After(start) {
		return false
	}
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			return false
		}
	}
	return true
}
