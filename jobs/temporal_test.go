package jobs

import (
	"testing"
	"time"

	"github.com/ecocomply/compliance_backend/models"
)

func TestClassifyBoundaries(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, loc)

	cases := []struct {
		days        int
		criticality models.ClockCriticality
		status      models.ClockStatus
	}{
		{-1, models.ClockCriticalityRed, models.ClockStatusOverdue},
		{0, models.ClockCriticalityRed, models.ClockStatusActive},
		{1, models.ClockCriticalityRed, models.ClockStatusActive},
		{7, models.ClockCriticalityRed, models.ClockStatusActive},
		{8, models.ClockCriticalityAmber, models.ClockStatusActive},
		{30, models.ClockCriticalityAmber, models.ClockStatusActive},
		{31, models.ClockCriticalityGreen, models.ClockStatusActive},
		{365, models.ClockCriticalityGreen, models.ClockStatusActive},
	}

	for _, tc := range cases {
		target := now.AddDate(0, 0, tc.days)
		days, criticality, status := Classify(target, now, loc)
		if days != tc.days {
			t.Fatalf("target %+d days: got days=%d", tc.days, days)
		}
		if criticality != tc.criticality {
			t.Fatalf("target %+d days: got criticality=%s, want %s", tc.days, criticality, tc.criticality)
		}
		if status != tc.status {
			t.Fatalf("target %+d days: got status=%s, want %s", tc.days, status, tc.status)
		}
	}
}

func TestDaysRemainingIgnoresTimeOfDay(t *testing.T) {
	loc := time.UTC
	// late evening now, early morning target two calendar days out
	now := time.Date(2026, 6, 1, 23, 55, 0, 0, loc)
	target := time.Date(2026, 6, 3, 0, 5, 0, 0, loc)

	if got := DaysRemaining(target, now, loc); got != 2 {
		t.Fatalf("got %d days, want 2", got)
	}
}

func TestDaysRemainingAcrossDSTChange(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatal(err)
	}

	// London springs forward on 2026-03-29; the week contains a 23-hour day.
	now := time.Date(2026, 3, 27, 12, 0, 0, 0, loc)
	target := time.Date(2026, 4, 3, 12, 0, 0, 0, loc)

	if got := DaysRemaining(target, now, loc); got != 7 {
		t.Fatalf("got %d days across the DST change, want 7", got)
	}

	// and back again across the autumn change (25-hour day)
	now = time.Date(2026, 10, 23, 12, 0, 0, 0, loc)
	target = time.Date(2026, 10, 30, 12, 0, 0, 0, loc)

	if got := DaysRemaining(target, now, loc); got != 7 {
		t.Fatalf("got %d days across the autumn change, want 7", got)
	}
}

func TestDaysRemainingUsesCompanyCalendar(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatal(err)
	}
	auckland, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Fatal(err)
	}

	// 13:00 UTC on June 1st is still June 1st in London but already June 2nd
	// in Auckland, so the same target sits one day closer there.
	now := time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC)
	target := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	inLondon := DaysRemaining(target, now, london)
	inAuckland := DaysRemaining(target, now, auckland)
	if inLondon != inAuckland+1 {
		t.Fatalf("got london=%d auckland=%d, want london = auckland + 1", inLondon, inAuckland)
	}
}

func TestLocationFor(t *testing.T) {
	if got := locationFor(""); got.String() != defaultTimezone {
		t.Fatalf("empty timezone: got %s, want %s", got, defaultTimezone)
	}
	if got := locationFor("Europe/Berlin"); got.String() != "Europe/Berlin" {
		t.Fatalf("got %s, want Europe/Berlin", got)
	}
	// an unknown zone must not take the pass down
	if got := locationFor("Mars/Olympus_Mons"); got != time.UTC {
		t.Fatalf("bad timezone: got %s, want UTC", got)
	}
}

func TestStartOfDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 7, 15, 18, 45, 12, 0, loc)

	got := startOfDay(now, loc)
	want := time.Date(2026, 7, 15, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}
