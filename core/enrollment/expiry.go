package enrollment

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core"
)

const (
	// GracePeriod separates the end of access from the deletion of the enrollment record.
	GracePeriod         = 10 * 24 * time.Hour
	DefaultRecordedDays = 365

	// past this, purchase + days cannot be represented as a valid instant anyway
	maxRecordedDays = 9999 * 366
)

// Policy holds the tunables of the piecewise expiry rule.
// The grace period and the fallback duration are fixed.
type Policy struct {
	// LiveBoundaryInclusive grants the live-phase expiry to a purchase made exactly at the live cutoff.
	LiveBoundaryInclusive bool
}

func DefaultPolicy() Policy {
	return Policy{LiveBoundaryInclusive: true}
}

// NewPolicy builds a Policy from the app config. LiveBoundaryInclusive is taken as is,
// so a zero EnrollmentConfig makes the boundary exclusive; core.NewConfig defaults it to true.
func NewPolicy(conf core.EnrollmentConfig) Policy {
	return Policy{LiveBoundaryInclusive: conf.LiveBoundaryInclusive}
}

// ComputeExpiry returns the instant after which an enrollment purchased at `purchase` stops granting access.
//
// Buying during the live phase (purchase on or before the live cutoff) grants access until the cutoff.
// Otherwise access lasts recordedDays from the purchase; non-positive durations mean the default.
// An unusable live date is ignored, and an unrepresentable result falls back to the default duration.
func (p Policy) ComputeExpiry(purchase time.Time, live null.Time, recordedDays int) time.Time {
	purchase = purchase.UTC()

	var expiry time.Time
	if live.Valid && ValidInstant(live.Time) && p.inLivePhase(purchase, live.Time.UTC()) {
		expiry = live.Time.UTC()
	} else {
		expiry = addDays(purchase, daysOrDefault(recordedDays))
	}

	if !ValidInstant(expiry) || expiry.Before(purchase) {
		expiry = addDays(purchase, DefaultRecordedDays)
	}
	return expiry
}

// ComputePurge returns the instant from which the enrollment record itself may be deleted.
func (p Policy) ComputePurge(expiry time.Time) time.Time {
	return expiry.UTC().Add(GracePeriod)
}

func (p Policy) inLivePhase(purchase, live time.Time) bool {
	if p.LiveBoundaryInclusive {
		return !purchase.After(live)
	}
	return purchase.Before(live)
}

func daysOrDefault(days int) int {
	if days <= 0 {
		return DefaultRecordedDays
	}
	return days
}

// ComputeExpiry applies the default policy.
func ComputeExpiry(purchase time.Time, live null.Time, recordedDays int) time.Time {
	return DefaultPolicy().ComputeExpiry(purchase, live, recordedDays)
}

// ComputePurge applies the fixed grace period.
func ComputePurge(expiry time.Time) time.Time {
	return DefaultPolicy().ComputePurge(expiry)
}

// ValidInstant reports whether t can be stored and compared as an expiry instant.
func ValidInstant(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	y := t.UTC().Year()
	return y >= 1 && y <= 9999
}

// addDays works on UTC instants so that a day is always 24h; an overflowing duration yields the zero time.
func addDays(t time.Time, days int) time.Time {
	if days > maxRecordedDays {
		return time.Time{}
	}
	return t.UTC().AddDate(0, 0, days)
}

// DurationDays is a day count read leniently from JSON: numbers, numeric strings, null and junk are all
// accepted, anything unusable becoming 0 (which ComputeExpiry treats as the default duration).
type DurationDays int

func (d *DurationDays) UnmarshalJSON(data []byte) error {
	*d = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 1 || f > maxRecordedDays {
		return nil
	}
	*d = DurationDays(int(f))
	return nil
}

// Days returns the day count, or the default when it is not positive.
func (d DurationDays) Days() int {
	if d <= 0 {
		return DefaultRecordedDays
	}
	return int(d)
}
