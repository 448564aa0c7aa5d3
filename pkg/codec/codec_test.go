package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/schedule"
)

const sunriseID = "example.com/solar.Sunrise"

// sunrise relies on the default JSON construction when decoded.
type sunrise struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (s *sunrise) Next(last time.Time) (time.Time, bool) { return last.Add(24 * time.Hour), true }
func (s *sunrise) TypeID() string                        { return sunriseID }
func (s *sunrise) EncodeAttrs() (map[string]any, error) {
	return map[string]any{"lat": s.Lat, "lon": s.Lon}, nil
}

// businessHours decodes itself through InitFromWire.
type businessHours struct {
	open, close int
	since       time.Time
	initialized bool
}

func (b *businessHours) Next(last time.Time) (time.Time, bool) { return last.Add(time.Hour), true }
func (b *businessHours) TypeID() string                        { return "example.com/office.BusinessHours" }
func (b *businessHours) EncodeAttrs() (map[string]any, error) {
	return map[string]any{"open": b.open, "close": b.close, "since": b.since}, nil
}

func (b *businessHours) InitFromWire(attrs map[string]any) error {
	since, ok := attrs["since"].(time.Time)
	if !ok {
		return fmt.Errorf("since is %T", attrs["since"])
	}
	b.open = int(attrs["open"].(float64))
	b.close = int(attrs["close"].(float64))
	b.since = since
	b.initialized = true
	return nil
}

func newTestCodec(t *testing.T) (*Codec, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return New(zerolog.New(&buf)), &buf
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestInstantRoundTrip(t *testing.T) {
	c, _ := newTestCodec(t)
	base := time.Date(2024, 5, 1, 9, 30, 15, 123456000, time.UTC)

	tests := []struct {
		name     string
		instant  time.Time
		wantZone string
	}{
		{"utc", base, "UTC"},
		{"named zone", base.In(mustLoad(t, "America/New_York")), "America/New_York"},
		{"half hour zone", base.In(mustLoad(t, "Asia/Kolkata")), "Asia/Kolkata"},
		{"anonymous fixed offset", base.In(time.FixedZone("", 5*3600+30*60)), ""},
		{"unresolvable zone name", base.In(time.FixedZone("+0300", 3*3600)), ""},
		{"fixed zone named like a dst zone", time.Date(2024, 7, 1, 10, 0, 0, 0, time.FixedZone("EET", 2*3600)), ""},
		{"fixed zone named utc", time.Date(2024, 7, 1, 10, 0, 0, 0, time.FixedZone("UTC", 3600)), ""},
		{"parsed unknown abbreviation", time.Date(2024, 7, 1, 10, 0, 0, 0, time.FixedZone("CET", 0)), ""},
		{"fixed zone matching its namesake", time.Date(2024, 1, 15, 10, 0, 0, 0, time.FixedZone("EET", 2*3600)), "EET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.EncodeInstant(tt.instant)
			require.NoError(t, err)

			got, err := c.DecodeInstant(data)
			require.NoError(t, err)

			assert.True(t, got.Equal(tt.instant), "got %v, want %v", got, tt.instant)
			_, wantOffset := tt.instant.Zone()
			_, gotOffset := got.Zone()
			assert.Equal(t, wantOffset, gotOffset)
			assert.Equal(t, tt.wantZone, got.Location().String())
		})
	}
}

func TestInstantTruncatesToMicroseconds(t *testing.T) {
	c, _ := newTestCodec(t)
	in := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)

	data, err := c.EncodeInstant(in)
	require.NoError(t, err)
	got, err := c.DecodeInstant(data)
	require.NoError(t, err)

	assert.Equal(t, 123456000, got.Nanosecond())
}

func TestInstantRecordLayout(t *testing.T) {
	c, _ := newTestCodec(t)
	in := time.Date(2024, 2, 29, 23, 59, 58, 7000, time.FixedZone("", -4*3600))

	data, err := c.Encode(in)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, map[string]any{
		"__type__":    "datetime",
		"year":        2024.0,
		"month":       2.0,
		"day":         29.0,
		"hour":        23.0,
		"minute":      59.0,
		"second":      58.0,
		"microsecond": 7.0,
		"timezone":    -14400.0,
	}, rec)
}

func TestDecodeInstant_Errors(t *testing.T) {
	c, _ := newTestCodec(t)

	_, err := c.DecodeInstant([]byte(`{"__type__":"datetime","year":2024,"month":1,"day":1,"hour":0,"minute":0,"second":0,"timezone":"Mars/Olympus"}`))
	assert.Error(t, err)

	_, err = c.DecodeInstant([]byte(`{"__type__":"datetime","year":2024}`))
	assert.Error(t, err)

	_, err = c.DecodeInstant([]byte(`{"__type__":"interval","every":5,"relative":false}`))
	assert.Error(t, err)
}

func TestIntervalRoundTrip(t *testing.T) {
	c, _ := newTestCodec(t)

	for _, in := range []*schedule.Interval{
		{Every: 3660 * time.Second},
		{Every: 1500 * time.Millisecond, Relative: true},
	} {
		data, err := c.EncodeSchedule(in)
		require.NoError(t, err)

		got, err := c.DecodeSchedule(data)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	}
}

func TestCrontabRoundTrip(t *testing.T) {
	c, _ := newTestCodec(t)
	in, err := schedule.NewCrontab("*/15", "9-17", "mon-fri", "*", "*")
	require.NoError(t, err)

	data, err := c.EncodeSchedule(in)
	require.NoError(t, err)
	got, err := c.DecodeSchedule(data)
	require.NoError(t, err)

	cron, ok := got.(*schedule.Crontab)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, in.Spec(), cron.Spec())
}

func TestDecodeCrontab_AcceptsNumbers(t *testing.T) {
	c, _ := newTestCodec(t)
	got, err := c.DecodeSchedule([]byte(`{"__type__":"crontab","minute":30,"hour":4}`))
	require.NoError(t, err)
	assert.Equal(t, "30 4 * * *", got.(*schedule.Crontab).Spec())
}

func TestCalendarRuleRoundTrip(t *testing.T) {
	c, _ := newTestCodec(t)
	kolkata := mustLoad(t, "Asia/Kolkata")

	in, err := schedule.NewCalendarRule(schedule.CalendarRule{
		Freq:      schedule.Monthly,
		Interval:  2,
		Wkst:      6,
		Dtstart:   time.Date(2024, 1, 5, 10, 0, 0, 987654321, kolkata),
		Until:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.FixedZone("", -5*3600)),
		ByWeekday: []schedule.Weekday{{Day: 4, N: -1}, {Day: 0}},
		ByHour:    []int{10, 14},
		BySetPos:  []int{1},
	})
	require.NoError(t, err)

	data, err := c.EncodeSchedule(in)
	require.NoError(t, err)
	decoded, err := c.DecodeSchedule(data)
	require.NoError(t, err)
	got, ok := decoded.(*schedule.CalendarRule)
	require.True(t, ok, "got %T", decoded)

	assert.Equal(t, in.Freq, got.Freq)
	assert.Equal(t, in.Interval, got.Interval)
	assert.Equal(t, in.Wkst, got.Wkst)
	assert.Equal(t, in.ByWeekday, got.ByWeekday)
	assert.Equal(t, in.ByHour, got.ByHour)
	assert.Equal(t, in.BySetPos, got.BySetPos)
	assert.Nil(t, got.ByMonth)

	// Boundaries lose sub-second precision but keep their offset.
	wantStart := in.Dtstart.Truncate(time.Second)
	assert.True(t, got.Dtstart.Equal(wantStart), "dtstart %v, want %v", got.Dtstart, wantStart)
	_, startOffset := got.Dtstart.Zone()
	assert.Equal(t, 330*60, startOffset)

	assert.True(t, got.Until.Equal(in.Until))
	_, untilOffset := got.Until.Zone()
	assert.Equal(t, -5*3600, untilOffset)
}

func TestCalendarRuleRecordLayout(t *testing.T) {
	c, _ := newTestCodec(t)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("", 90*60))
	in, err := schedule.NewCalendarRule(schedule.CalendarRule{Freq: schedule.Daily, Count: 5, Dtstart: start})
	require.NoError(t, err)

	rec, err := c.ToRecord(in)
	require.NoError(t, err)

	assert.Equal(t, "rrule", rec["__type__"])
	assert.Equal(t, start.Unix(), rec["dtstart"])
	assert.Equal(t, 90, rec["dtstart_tz"])
	assert.Equal(t, 5, rec["count"])
	assert.NotContains(t, rec, "until")
	assert.Contains(t, rec, "bymonthday")
}

func TestDecodeRRule_PlainWeekdays(t *testing.T) {
	c, _ := newTestCodec(t)
	got, err := c.DecodeSchedule([]byte(`{"__type__":"rrule","freq":2,"byweekday":[0,4],"dtstart":1704067200}`))
	require.NoError(t, err)

	rule := got.(*schedule.CalendarRule)
	assert.Equal(t, []schedule.Weekday{{Day: 0}, {Day: 4}}, rule.ByWeekday)
	assert.Equal(t, time.UTC, rule.Dtstart.Location())
	assert.Equal(t, 1, rule.Interval)
}

func TestCustomRoundTrip_DefaultConstruction(t *testing.T) {
	c, buf := newTestCodec(t)
	c.Register(sunriseID, func() schedule.Encodable { return &sunrise{} })

	data, err := c.EncodeSchedule(&sunrise{Lat: 52.5, Lon: 13.4})
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "Sunrise", rec["__type__"])
	assert.Equal(t, sunriseID, rec["import_path"])

	got, err := c.DecodeSchedule(data)
	require.NoError(t, err)
	assert.Equal(t, &sunrise{Lat: 52.5, Lon: 13.4}, got)
	assert.Empty(t, buf.String())
}

func TestCustomRoundTrip_WireInitializer(t *testing.T) {
	c, _ := newTestCodec(t)
	c.Register("example.com/office.BusinessHours", func() schedule.Encodable { return &businessHours{} })

	since := time.Date(2023, 7, 1, 8, 0, 0, 0, mustLoad(t, "Europe/Berlin"))
	data, err := c.EncodeSchedule(&businessHours{open: 9, close: 17, since: since})
	require.NoError(t, err)

	decoded, err := c.DecodeSchedule(data)
	require.NoError(t, err)

	got := decoded.(*businessHours)
	assert.True(t, got.initialized, "InitFromWire should be preferred")
	assert.Equal(t, 9, got.open)
	assert.Equal(t, 17, got.close)
	assert.True(t, got.since.Equal(since))
	assert.Equal(t, "Europe/Berlin", got.since.Location().String())
}

func TestDecodeUnregisteredCustomDegrades(t *testing.T) {
	producer, _ := newTestCodec(t)
	data, err := producer.EncodeSchedule(&sunrise{Lat: 1, Lon: 2})
	require.NoError(t, err)

	consumer, buf := newTestCodec(t)
	decoded, err := consumer.DecodeSchedule(data)
	require.NoError(t, err, "an unknown custom type must not fail the decode")

	u, ok := decoded.(*schedule.Unresolved)
	require.True(t, ok, "got %T", decoded)
	assert.Equal(t, "Sunrise", u.Type)
	assert.Equal(t, sunriseID, u.ImportPath)
	assert.Equal(t, map[string]any{"lat": 1.0, "lon": 2.0}, u.Attrs)

	var logLine map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logLine))
	assert.Equal(t, "warn", logLine["level"])
	assert.Equal(t, sunriseID, logLine["import_path"])

	// The pass-through value re-encodes to the same record.
	again, err := consumer.EncodeSchedule(u)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestEncodeUnsupportedType(t *testing.T) {
	c, _ := newTestCodec(t)

	for _, v := range []any{struct{}{}, make(chan int), 42, "daily"} {
		_, err := c.Encode(v)
		require.Error(t, err)
		assert.ErrorIs(t, err, bferrors.ErrUnsupportedType)

		var ute *bferrors.UnsupportedTypeError
		require.ErrorAs(t, err, &ute)
		assert.Equal(t, fmt.Sprintf("%T", v), ute.Type)
	}
}

func TestDecodeUntaggedAndInvalid(t *testing.T) {
	c, _ := newTestCodec(t)

	got, err := c.Decode([]byte(`{"foo":"bar"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"foo": "bar"}, got)

	_, err = c.Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, err = c.DecodeSchedule([]byte(`{"foo":"bar"}`))
	assert.Error(t, err)
}

func TestShortName(t *testing.T) {
	tests := map[string]string{
		"example.com/solar.Sunrise": "Sunrise",
		"main.Custom":               "Custom",
		"Plain":                     "Plain",
	}
	for in, want := range tests {
		assert.Equal(t, want, shortName(in), in)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	c, _ := newTestCodec(t)
	at := time.Date(2024, 8, 1, 6, 0, 0, 500000000, mustLoad(t, "Asia/Tokyo"))

	in := map[string]any{
		"report": "daily",
		"since":  at,
		"limits": []any{1, 2.5, map[string]any{"until": at}},
	}
	data, err := c.EncodePayload(in)
	require.NoError(t, err)

	out, err := c.DecodePayload(data)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "daily", m["report"])
	assert.True(t, m["since"].(time.Time).Equal(at))

	limits := m["limits"].([]any)
	assert.Equal(t, 1.0, limits[0])
	assert.True(t, limits[2].(map[string]any)["until"].(time.Time).Equal(at))

	nilData, err := c.EncodePayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(nilData))
}
