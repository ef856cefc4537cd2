package workflow

import "time"

// BusinessDate resolves the shop-local operating day for an instant. A shop's
// day rolls over at rolloverHour local time, not at midnight: at 02:00 with a
// 04:00 rollover the token still belongs to yesterday's service.
//
// The result is the calendar date at midnight UTC, which is what a DATE
// column stores.
func BusinessDate(loc *time.Location, rolloverHour int, t time.Time) time.Time {
	local := t.In(loc)
	if local.Hour() < rolloverHour {
		local = local.AddDate(0, 0, -1)
	}
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
