package fat

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{
			name:  "a normal date",
			input: 20890,
			want:  time.Date(2020, 12, 26, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "the epoch",
			input: 1<<5 | 1,
			want:  time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "day 0 is invalid",
			input: 40<<9 | 12<<5,
			want:  time.Time{},
		},
		{
			name:  "month 0 is invalid",
			input: 40<<9 | 26,
			want:  time.Time{},
		},
		{
			name:  "month 13 rolls over into the next year",
			input: 40<<9 | 13<<5 | 1,
			want:  time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDate(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{
			name:  "a normal time",
			input: 41936,
			want:  time.Date(1, 1, 1, 20, 30, 32, 0, time.UTC),
		},
		{
			name:  "midnight",
			input: 0,
			want:  time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "minute 59 uses all six minute bits",
			input: 59 << 5,
			want:  time.Date(1, 1, 1, 0, 59, 0, 0, time.UTC),
		},
		{
			name:  "hour 31 is capped",
			input: 31 << 11,
			want:  time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseTime(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDateTime(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)

	tests := []struct {
		name string
		date uint16
		time uint16
		loc  *time.Location
		want time.Time
	}{
		{
			name: "UTC",
			date: 20890,
			time: 41936,
			loc:  time.UTC,
			want: time.Date(2020, 12, 26, 20, 30, 32, 0, time.UTC),
		},
		{
			name: "the wall clock is kept in other zones",
			date: 20890,
			time: 41936,
			loc:  berlin,
			want: time.Date(2020, 12, 26, 18, 30, 32, 0, time.UTC),
		},
		{
			name: "invalid date",
			date: 0,
			time: 41936,
			loc:  time.UTC,
			want: time.Time{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDateTime(tt.date, tt.time, tt.loc)
			if !got.Equal(tt.want) {
				t.Errorf("ParseDateTime() = %v, want %v", got, tt.want)
			}
			if got.IsZero() != tt.want.IsZero() {
				t.Errorf("ParseDateTime().IsZero() = %v, want %v", got.IsZero(), tt.want.IsZero())
			}
		})
	}
}

func TestPackDateTime(t *testing.T) {
	tests := []struct {
		name     string
		in       time.Time
		wantDate uint16
		wantTime uint16
	}{
		{
			name:     "a normal date and time",
			in:       time.Date(2020, 12, 26, 20, 30, 32, 0, time.UTC),
			wantDate: 20890,
			wantTime: 41936,
		},
		{
			name:     "odd seconds are dropped",
			in:       time.Date(2020, 12, 26, 20, 30, 33, 0, time.UTC),
			wantDate: 20890,
			wantTime: 41936,
		},
		{
			name:     "before the epoch",
			in:       time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			wantDate: 1<<5 | 1,
			wantTime: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PackDate(tt.in); got != tt.wantDate {
				t.Errorf("PackDate() = %v, want %v", got, tt.wantDate)
			}
			if got := PackTime(tt.in); got != tt.wantTime {
				t.Errorf("PackTime() = %v, want %v", got, tt.wantTime)
			}
		})
	}
}
