package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aluiziolira/citybike-scraper/models"
)

// ErrNotCount is returned by CoerceCount for values that are not a count.
var ErrNotCount = errors.New("not a station count")

// Counts are the per-network totals of a detail payload.
type Counts struct {
	Stations   int
	EmptySlots int
	Bikes      int
}

// Aggregate sums empty slots and free bikes over every station. A station
// field that cannot be coerced contributes zero; Stations always counts
// every entry.
func Aggregate(detail models.NetworkDetail) (Counts, error) {
	if detail.Network == nil || detail.Network.Stations == nil {
		return Counts{}, &MalformedRecordError{Field: "network.stations"}
	}

	stations := detail.Network.Stations
	counts := Counts{Stations: len(stations)}
	for _, station := range stations {
		if n, err := CoerceCount(station.EmptySlots); err == nil {
			counts.EmptySlots += n
		}
		if n, err := CoerceCount(station.FreeBikes); err == nil {
			counts.Bikes += n
		}
	}
	return counts, nil
}

// CoerceCount converts a raw JSON station count to an int. Integers pass
// through, floats truncate toward zero, strings are trimmed and parsed as
// base-10 integers and booleans map to 1/0. Negative results are rejected.
func CoerceCount(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: missing", ErrNotCount)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotCount, err)
	}

	var n int64
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = i
			break
		}
		f, err := v.Float64()
		if err != nil || math.IsNaN(f) || math.Abs(f) >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %s", ErrNotCount, raw)
		}
		n = int64(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotCount, v)
		}
		n = i
	case bool:
		if v {
			n = 1
		}
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotCount, raw)
	}

	if n < 0 {
		return 0, fmt.Errorf("%w: negative %d", ErrNotCount, n)
	}
	return int(n), nil
}
