package bolt12

import (
	"fmt"
	"io"
	"time"

	"github.com/lightningnetwork/lnd/tlv"
)

// TimeUnit is the unit a recurrence period is expressed in.
type TimeUnit uint8

const (
	// UnitSeconds counts periods in seconds.
	UnitSeconds TimeUnit = 0

	// UnitDays counts periods in days of 86400 seconds.
	UnitDays TimeUnit = 1

	// UnitMonths counts periods in calendar months.
	UnitMonths TimeUnit = 2

	// UnitYears counts periods in calendar years.
	UnitYears TimeUnit = 3
)

// String returns a human readable unit name.
func (u TimeUnit) String() string {
	switch u {
	case UnitSeconds:
		return "seconds"
	case UnitDays:
		return "days"
	case UnitMonths:
		return "months"
	case UnitYears:
		return "years"
	default:
		return fmt.Sprintf("unit<%d>", uint8(u))
	}
}

// Valid reports whether the unit is one we know how to step.
func (u TimeUnit) Valid() bool {
	return u <= UnitYears
}

// Recurrence describes the period over which an offer repeats.
type Recurrence struct {
	// TimeUnit is the unit Period is counted in.
	TimeUnit TimeUnit

	// Period is the number of units making up one period.
	Period uint32
}

// PeriodStart returns the unix start time of the period with the given
// zero-based index. Months and years step through the Gregorian
// calendar anchored at basetime rather than using fixed-length
// approximations.
func (r *Recurrence) PeriodStart(basetime uint64, periodIdx uint64) uint64 {
	units := periodIdx * uint64(r.Period)

	switch r.TimeUnit {
	case UnitSeconds:
		return basetime + units

	case UnitDays:
		return basetime + units*86400

	case UnitMonths:
		base := time.Unix(int64(basetime), 0).UTC()
		return uint64(base.AddDate(0, int(units), 0).Unix())

	case UnitYears:
		base := time.Unix(int64(basetime), 0).UTC()
		return uint64(base.AddDate(int(units), 0, 0).Unix())

	default:
		// Unknown units are rejected at decode time.
		return basetime
	}
}

// RecurrenceBase anchors the first period of a recurring offer at an
// absolute time.
type RecurrenceBase struct {
	// StartAnyPeriod is non-zero if a payer may start paying at any
	// period rather than the first, in which case requests carry a
	// recurrence_start offset.
	StartAnyPeriod bool

	// Basetime is the unix start time of period zero.
	Basetime uint64
}

// RecurrencePaywindow restricts when payment for a period is accepted,
// relative to the period's start time.
type RecurrencePaywindow struct {
	// SecondsBefore is how long before period start payment opens.
	SecondsBefore uint32

	// ProportionalAmount is non-zero if the amount charged is scaled
	// by the remaining fraction of the period.
	ProportionalAmount bool

	// SecondsAfter is how long after period start payment closes.
	SecondsAfter uint32
}

// Paywindow computes the inclusive unix bounds within which the period
// with the given index may be paid. Without an explicit paywindow the
// window opens 60 seconds before the period starts and closes at the
// period's end.
func Paywindow(r *Recurrence, pw *RecurrencePaywindow, basetime uint64,
	periodIdx uint64) (uint64, uint64) {

	start := r.PeriodStart(basetime, periodIdx)

	if pw != nil {
		windowStart := start - uint64(pw.SecondsBefore)
		if uint64(pw.SecondsBefore) > start {
			windowStart = 0
		}

		return windowStart, start + uint64(pw.SecondsAfter)
	}

	windowStart := uint64(0)
	if start >= 60 {
		windowStart = start - 60
	}

	return windowStart, r.PeriodStart(basetime, periodIdx+1) - 1
}

// recurrenceRecord creates the record for the recurrence field, encoded
// as a single time unit byte followed by a 32-bit period count.
func recurrenceRecord(tlvType tlv.Type, r **Recurrence) tlv.Record {
	return tlv.MakeStaticRecord(
		tlvType, r, 5, encodeRecurrence, decodeRecurrence,
	)
}

func encodeRecurrence(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(**Recurrence); ok {
		unit := uint8((*v).TimeUnit)
		if err := tlv.EUint8(w, &unit, buf); err != nil {
			return err
		}

		return tlv.EUint32(w, &(*v).Period, buf)
	}

	return tlv.NewTypeForEncodingErr(val, "recurrence")
}

func decodeRecurrence(r io.Reader, val interface{}, buf *[8]byte,
	l uint64) error {

	v, ok := val.(**Recurrence)
	if !ok || l != 5 {
		return tlv.NewTypeForDecodingErr(val, "recurrence", l, 5)
	}

	var (
		unit   uint8
		period uint32
	)
	if err := tlv.DUint8(r, &unit, buf, 1); err != nil {
		return err
	}
	if err := tlv.DUint32(r, &period, buf, 4); err != nil {
		return err
	}

	if !TimeUnit(unit).Valid() {
		return fmt.Errorf("unknown recurrence time unit: %d", unit)
	}

	*v = &Recurrence{
		TimeUnit: TimeUnit(unit),
		Period:   period,
	}

	return nil
}

// recurrenceBaseRecord creates the record for the recurrence_base field,
// a start_any_period byte followed by a 64-bit basetime.
func recurrenceBaseRecord(tlvType tlv.Type, r **RecurrenceBase) tlv.Record {
	return tlv.MakeStaticRecord(
		tlvType, r, 9, encodeRecurrenceBase, decodeRecurrenceBase,
	)
}

func encodeRecurrenceBase(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(**RecurrenceBase); ok {
		var anyPeriod uint8
		if (*v).StartAnyPeriod {
			anyPeriod = 1
		}
		if err := tlv.EUint8(w, &anyPeriod, buf); err != nil {
			return err
		}

		return tlv.EUint64(w, &(*v).Basetime, buf)
	}

	return tlv.NewTypeForEncodingErr(val, "recurrence_base")
}

func decodeRecurrenceBase(r io.Reader, val interface{}, buf *[8]byte,
	l uint64) error {

	v, ok := val.(**RecurrenceBase)
	if !ok || l != 9 {
		return tlv.NewTypeForDecodingErr(val, "recurrence_base", l, 9)
	}

	var (
		anyPeriod uint8
		basetime  uint64
	)
	if err := tlv.DUint8(r, &anyPeriod, buf, 1); err != nil {
		return err
	}
	if err := tlv.DUint64(r, &basetime, buf, 8); err != nil {
		return err
	}

	*v = &RecurrenceBase{
		StartAnyPeriod: anyPeriod != 0,
		Basetime:       basetime,
	}

	return nil
}

// recurrencePaywindowRecord creates the record for recurrence_paywindow:
// seconds_before, proportional_amount byte, seconds_after.
func recurrencePaywindowRecord(tlvType tlv.Type,
	r **RecurrencePaywindow) tlv.Record {

	return tlv.MakeStaticRecord(
		tlvType, r, 9, encodeRecurrencePaywindow,
		decodeRecurrencePaywindow,
	)
}

func encodeRecurrencePaywindow(w io.Writer, val interface{},
	buf *[8]byte) error {

	if v, ok := val.(**RecurrencePaywindow); ok {
		if err := tlv.EUint32(w, &(*v).SecondsBefore, buf); err != nil {
			return err
		}

		var proportional uint8
		if (*v).ProportionalAmount {
			proportional = 1
		}
		if err := tlv.EUint8(w, &proportional, buf); err != nil {
			return err
		}

		return tlv.EUint32(w, &(*v).SecondsAfter, buf)
	}

	return tlv.NewTypeForEncodingErr(val, "recurrence_paywindow")
}

func decodeRecurrencePaywindow(r io.Reader, val interface{}, buf *[8]byte,
	l uint64) error {

	v, ok := val.(**RecurrencePaywindow)
	if !ok || l != 9 {
		return tlv.NewTypeForDecodingErr(
			val, "recurrence_paywindow", l, 9,
		)
	}

	var (
		before, after uint32
		proportional  uint8
	)
	if err := tlv.DUint32(r, &before, buf, 4); err != nil {
		return err
	}
	if err := tlv.DUint8(r, &proportional, buf, 1); err != nil {
		return err
	}
	if err := tlv.DUint32(r, &after, buf, 4); err != nil {
		return err
	}

	*v = &RecurrencePaywindow{
		SecondsBefore:      before,
		ProportionalAmount: proportional != 0,
		SecondsAfter:       after,
	}

	return nil
}
