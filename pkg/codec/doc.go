// Package codec serializes beat schedules and instants into flat,
// self-describing JSON records suitable for storing as string values.
//
// Every record carries a "__type__" tag:
//
//	{"__type__": "interval", "every": 60, "relative": false}
//	{"__type__": "crontab", "minute": "0", "hour": "*/4", "day_of_week": "*",
//	 "day_of_month": "*", "month_of_year": "*"}
//	{"__type__": "datetime", "year": 2024, "month": 5, "day": 1, "hour": 9,
//	 "minute": 30, "second": 0, "microsecond": 250, "timezone": "Europe/Paris"}
//
// Instants keep microsecond precision and either their IANA zone name or,
// for pure fixed offsets, the offset in seconds. Calendar rules store their
// start and end instants as epoch seconds with a sibling offset in minutes.
//
// Custom schedule types are tagged with their short name and an
// "import_path" carrying the identifier they were registered under.
// Decoding a custom record whose identifier is not registered logs a
// warning and yields a *schedule.Unresolved, which re-encodes unchanged.
package codec
