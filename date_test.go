package fat32

import (
	"testing"
	"time"
)

func TestDateTimeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
	}{
		{"epoch", time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{"ordinary", time.Date(2003, time.July, 14, 13, 42, 10, 0, time.UTC)},
		{"odd second truncates to even", time.Date(2020, time.December, 31, 23, 59, 59, 0, time.UTC)},
		{"max representable year", time.Date(2107, time.June, 5, 1, 2, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dateWord, timeWord := EncodeDateTime(tt.in)
			got, ok := DecodeDateTime(dateWord, timeWord)
			if !ok {
				t.Fatalf("DecodeDateTime(%04x, %04x) reported not ok", dateWord, timeWord)
			}

			wantSecond := tt.in.Second() - tt.in.Second()%2
			want := time.Date(tt.in.Year(), tt.in.Month(), tt.in.Day(), tt.in.Hour(), tt.in.Minute(), wantSecond, 0, time.UTC)
			if !got.Equal(want) {
				t.Errorf("round trip = %v, want %v", got, want)
			}
		})
	}
}

func TestParseDateRejectsZeroFields(t *testing.T) {
	if _, _, _, ok := ParseDate(0); ok {
		t.Error("ParseDate(0) should report ok=false (day and month are zero)")
	}
}

func TestPackDateClampsOutOfRangeYears(t *testing.T) {
	word := PackDate(1970, time.January, 1)
	y, _, _, ok := ParseDate(word)
	if !ok || y != 1980 {
		t.Errorf("PackDate clamped to %d, want 1980", y)
	}
}
