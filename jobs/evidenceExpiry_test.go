package jobs

import (
	"reflect"
	"testing"

	"github.com/ecocomply/compliance_backend/models"
)

func TestRemindersDue(t *testing.T) {
	ladder := models.IntList{90, 30, 7}

	tests := []struct {
		name string
		days int
		sent models.IntList
		want []int
	}{
		{"far out, nothing due", 95, nil, nil},
		{"first threshold crossed", 89, nil, []int{90}},
		{"already sent, nothing refires", 89, models.IntList{90}, nil},
		{"between thresholds", 31, models.IntList{90}, nil},
		{"second threshold crossed", 29, models.IntList{90}, []int{30}},
		{"third threshold crossed", 6, models.IntList{90, 30}, []int{7}},
		{"big jump fires every missed threshold", 5, nil, []int{90, 30, 7}},
		{"expiry day is silent", 0, nil, nil},
		{"past expiry is silent", -3, models.IntList{90}, nil},
		{"threshold day itself fires", 30, models.IntList{90}, []int{30}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := remindersDue(tc.days, ladder, tc.sent)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("days=%d sent=%v: got %v, want %v", tc.days, tc.sent, got, tc.want)
			}
		})
	}
}

// Each threshold fires exactly once over the life of an item, regardless of
// how the countdown lands between passes.
func TestRemindersDueOverItemLifetime(t *testing.T) {
	ladder := models.IntList{90, 30, 7}
	var sent models.IntList

	fired := map[int]int{}
	for _, days := range []int{95, 89, 31, 29, 8, 6, 2, 0, -1} {
		due := remindersDue(days, ladder, sent)
		for _, threshold := range due {
			fired[threshold]++
		}
		sent = append(sent, due...)
	}

	for _, threshold := range ladder {
		if fired[threshold] != 1 {
			t.Fatalf("threshold %d fired %d times", threshold, fired[threshold])
		}
	}
}

func TestRemindersDueCustomLadder(t *testing.T) {
	// a tenant running a single long-lead reminder
	due := remindersDue(120, models.IntList{180}, nil)
	if !reflect.DeepEqual(due, []int{180}) {
		t.Fatalf("got %v, want [180]", due)
	}
	if got := remindersDue(120, models.IntList{180}, models.IntList{180}); got != nil {
		t.Fatalf("got %v after send, want nothing", got)
	}
}
