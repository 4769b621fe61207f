package utils

import (
	"reflect"
	"testing"
	"time"
)

func TestSplitSerials(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"single", "A1", []string{"A1"}},
		{"comma list", "A1, A2, A3", []string{"A1", "A2", "A3"}},
		{"empty tokens dropped", " A1,, ,A2 ,", []string{"A1", "A2"}},
		{"blank", "   ", []string{}},
		{"only commas", ",,,", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitSerials(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SplitSerials(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := Truncate("수리 내역이 아주 깁니다", 5); got != "수리 내역…" {
		t.Errorf("unexpected %q", got)
	}
}

func TestDateOfUsesLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	// 2026-10-18 20:00 UTC is already the 19th in Seoul.
	instant := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
	got := time.Time(DateOf(instant, seoul))
	want := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DateOf = %v, want %v", got, want)
	}
}

func TestParseDateAndMonthRange(t *testing.T) {
	d, err := ParseDate("2026-02-14")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	start, end := MonthRange(d)
	if got := time.Time(start).Format(DateLayout); got != "2026-02-01" {
		t.Errorf("start = %s", got)
	}
	if got := time.Time(end).Format(DateLayout); got != "2026-03-01" {
		t.Errorf("end = %s", got)
	}
	if _, err := ParseDate("14/02/2026"); err == nil {
		t.Error("expected error for unsupported layout")
	}
}
