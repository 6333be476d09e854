package store

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 23*60 + 59, false},
		{"10:30:00", 630, false},
		{"24:00", 0, true},
		{"09:60", 0, true},
		{"morning", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTimeOfDayString(t *testing.T) {
	if got := TimeOfDay(540).String(); got != "09:00" {
		t.Errorf("String() = %q, want 09:00", got)
	}
	if got := TimeOfDay(17*60 + 30).String(); got != "17:30" {
		t.Errorf("String() = %q, want 17:30", got)
	}
}

func TestTimeOfDayAlignDown(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10:15", "10:00"},
		{"10:30", "10:30"},
		{"10:44", "10:30"},
		{"00:05", "00:00"},
	}
	for _, tt := range tests {
		in, _ := ParseTimeOfDay(tt.in)
		if got := in.AlignDown(30 * time.Minute); got.String() != tt.want {
			t.Errorf("AlignDown(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestReservationSlots(t *testing.T) {
	start, _ := ParseTimeOfDay("09:00")
	r := Reservation{StartTime: start, SlotCount: 4}
	slots := r.Slots(30 * time.Minute)
	want := []string{"09:00", "09:30", "10:00", "10:30"}
	if len(slots) != len(want) {
		t.Fatalf("got %d slots, want %d", len(slots), len(want))
	}
	for i, w := range want {
		if slots[i].String() != w {
			t.Errorf("slot %d = %s, want %s", i, slots[i], w)
		}
	}
}
