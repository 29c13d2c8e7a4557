package booking

import (
	"fmt"
	"time"

	"github.com/taskhive/service-booking/pkg/domain"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Slot is the (date, time) a booking occupies. Both parts are kept in their
// canonical string form so that equality is plain string equality.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// NewSlot validates and canonicalizes a date (YYYY-MM-DD) and time (HH:MM).
func NewSlot(date, clock string) (Slot, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return Slot{}, domain.NewValidationError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}
	t, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return Slot{}, domain.NewValidationError(fmt.Sprintf("invalid time %q, expected HH:MM", clock))
	}
	return Slot{Date: d.Format(DateLayout), Time: t.Format(TimeLayout)}, nil
}

// IsBefore reports whether the slot's date is strictly before the calendar
// day of now, evaluated in UTC.
func (s Slot) IsBefore(now time.Time) bool {
	today := now.UTC().Format(DateLayout)
	return s.Date < today
}

// String renders the slot as "YYYY-MM-DD HH:MM".
func (s Slot) String() string {
	return s.Date + " " + s.Time
}
