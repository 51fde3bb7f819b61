package markethours

import (
	"strings"
	"testing"
	"time"
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestIsMarketOpen_WeekBoundaries(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"wednesday midday", utc(2026, time.March, 11, 12, 0), true},
		{"friday before close", utc(2026, time.March, 13, 21, 59), true},
		{"friday at close", utc(2026, time.March, 13, 22, 0), false},
		{"saturday", utc(2026, time.March, 14, 12, 0), false},
		{"sunday before open", utc(2026, time.March, 15, 21, 59), false},
		{"sunday at open", utc(2026, time.March, 15, 22, 0), true},
		{"christmas", utc(2026, time.December, 25, 12, 0), false},
		{"new year", utc(2027, time.January, 1, 9, 0), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.at); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsMarketOpen_UsesUTC(t *testing.T) {
	// 23:30 Friday in UTC+5:30 is 18:00 Friday UTC: still open.
	ist := time.FixedZone("IST", 5*3600+30*60)
	at := time.Date(2026, time.March, 13, 23, 30, 0, 0, ist)
	if !IsMarketOpen(at) {
		t.Error("expected market open when evaluated in UTC")
	}
}

func TestNextOpen(t *testing.T) {
	sat := utc(2026, time.March, 14, 10, 15)
	want := utc(2026, time.March, 15, 22, 0)
	if got := NextOpen(sat); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	open := utc(2026, time.March, 11, 12, 0)
	if got := NextOpen(open); !got.Equal(open) {
		t.Errorf("expected NextOpen of an open time to be itself, got %v", got)
	}
}

func TestNextOpen_SkipsHoliday(t *testing.T) {
	// Christmas 2026 is a Friday; next open is Sunday 27th 22:00.
	xmas := utc(2026, time.December, 25, 8, 0)
	want := utc(2026, time.December, 27, 22, 0)
	if got := NextOpen(xmas); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTimeUntilClose(t *testing.T) {
	fri := utc(2026, time.March, 13, 20, 30)
	if got := TimeUntilClose(fri); got != 90*time.Minute {
		t.Errorf("expected 1h30m, got %v", got)
	}
	if got := TimeUntilClose(utc(2026, time.March, 14, 0, 0)); got != 0 {
		t.Errorf("expected 0 while closed, got %v", got)
	}
}

func TestStatusString(t *testing.T) {
	if s := StatusString(utc(2026, time.March, 13, 20, 30)); !strings.HasPrefix(s, "Forex open") {
		t.Errorf("unexpected status %q", s)
	}
	if s := StatusString(utc(2026, time.March, 14, 20, 30)); !strings.Contains(s, "opens Sun 22:00") {
		t.Errorf("unexpected status %q", s)
	}
}

func TestLocalSymbol(t *testing.T) {
	open := utc(2026, time.March, 11, 12, 0)
	closed := utc(2026, time.March, 14, 12, 0)

	cases := []struct {
		provider string
		at       time.Time
		want     string
	}{
		{"EUR/USD", open, "EURUSD"},
		{"EUR/USD", closed, "EURUSD-OTC"},
		{"gbp/jpy", closed, "GBPJPY-OTC"},
		{"BTC/USD", closed, "BTCUSD"},
		{"ETHUSD", closed, "ETHUSD"},
		{"USD/JPY", utc(2026, time.December, 25, 12, 0), "USDJPY-OTC"},
		{"", closed, ""},
	}
	for _, tc := range cases {
		if got := LocalSymbol(tc.provider, tc.at); got != tc.want {
			t.Errorf("LocalSymbol(%q, %v): expected %q, got %q", tc.provider, tc.at, tc.want, got)
		}
	}
}

func TestBaseSymbol(t *testing.T) {
	if got := BaseSymbol("EURUSD-OTC"); got != "EURUSD" {
		t.Errorf("expected EURUSD, got %s", got)
	}
	if got := BaseSymbol("EURUSD"); got != "EURUSD" {
		t.Errorf("expected EURUSD, got %s", got)
	}
}
