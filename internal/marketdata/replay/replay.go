// Package replay feeds recorded provider ticks back through the engine at a
// configurable speed for backtesting.
//
// Recordings are CSV with a header row:
//
//	timestamp,symbol,price[,bid,ask]
//
// timestamp is epoch seconds or RFC 3339.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"signalengine/internal/logger"
	"signalengine/internal/model"
)

// ErrNoTicks is returned by Load for a recording without usable rows.
var ErrNoTicks = errors.New("replay: no ticks")

// Load parses a recording and returns its ticks in time order. Rows with a
// bad timestamp or a non-positive price are skipped.
func Load(r io.Reader, l *slog.Logger) ([]model.ProviderTick, error) {
	l = logger.Component(l, "replay")
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("replay: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"timestamp", "symbol", "price"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("replay: missing column %q", req)
		}
	}

	var ticks []model.ProviderTick
	skipped := 0
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replay: line %d: %w", line, err)
		}
		t, ok := parseRow(rec, col)
		if !ok {
			skipped++
			continue
		}
		ticks = append(ticks, t)
	}
	if len(ticks) == 0 {
		return nil, ErrNoTicks
	}

	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].EpochSeconds < ticks[j].EpochSeconds })
	l.Info("[replay] loaded recording", slog.Int("ticks", len(ticks)), slog.Int("skipped", skipped))
	return ticks, nil
}

func parseRow(rec []string, col map[string]int) (model.ProviderTick, bool) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ts, ok := parseTimestamp(field("timestamp"))
	if !ok {
		return model.ProviderTick{}, false
	}
	price, err := strconv.ParseFloat(field("price"), 64)
	if err != nil || price <= 0 {
		return model.ProviderTick{}, false
	}
	t := model.ProviderTick{Symbol: field("symbol"), Price: price, EpochSeconds: ts}
	if t.Symbol == "" {
		return model.ProviderTick{}, false
	}
	t.Bid, _ = strconv.ParseFloat(field("bid"), 64)
	t.Ask, _ = strconv.ParseFloat(field("ask"), 64)
	return t, true
}

func parseTimestamp(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return n, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), true
	}
	return 0, false
}

// Run hands every tick to apply in order. speed controls the playback rate:
// 1 is real time, 10 is ten times faster, 0 is as fast as possible. Gaps are
// capped at maxGap wall time.
func Run(ctx context.Context, ticks []model.ProviderTick, speed float64, apply func(model.ProviderTick)) error {
	const maxGap = 5 * time.Second

	var prev int64
	for i, t := range ticks {
		select {
		case <-ctx.Done():
			return fmt.Errorf("replay: cancelled after %d ticks: %w", i, ctx.Err())
		default:
		}

		if speed > 0 && prev != 0 && t.EpochSeconds > prev {
			gap := time.Duration(float64(time.Duration(t.EpochSeconds-prev)*time.Second) / speed)
			if gap > maxGap {
				gap = maxGap
			}
			timer := time.NewTimer(gap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("replay: cancelled after %d ticks: %w", i, ctx.Err())
			case <-timer.C:
			}
		}
		prev = t.EpochSeconds
		apply(t)
	}
	return nil
}
