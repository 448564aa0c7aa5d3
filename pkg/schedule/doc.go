// Package schedule defines the recurrence rules a beat entry can follow.
//
// Three kinds are built in:
//
//   - Interval: a fixed period, optionally aligned to wall-clock boundaries
//   - Crontab: five cron fields evaluated with github.com/robfig/cron/v3
//   - CalendarRule: an RFC 5545 rule evaluated with github.com/teambition/rrule-go
//
// Any other type can be scheduled by implementing Encodable and registering
// a factory with the codec:
//
//	type Sunrise struct{ Lat, Lon float64 }
//
//	func (s *Sunrise) Next(last time.Time) (time.Time, bool) { ... }
//	func (s *Sunrise) TypeID() string                       { return "example.com/solar.Sunrise" }
//	func (s *Sunrise) EncodeAttrs() (map[string]any, error) {
//		return map[string]any{"lat": s.Lat, "lon": s.Lon}, nil
//	}
//
//	c.Register("example.com/solar.Sunrise", func() schedule.Encodable { return &Sunrise{} })
//
// Types that need more than the default JSON mapping when decoding may also
// implement WireInitializer.
package schedule
