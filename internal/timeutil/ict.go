package timeutil

import (
	"time"
)

// ICT is Indochina Time (UTC+7), the zone both payment gateways expect.
var ICT *time.Location

func init() {
	var err error
	ICT, err = time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		// Fallback: create fixed zone if tzdata is not available
		ICT = time.FixedZone("ICT", 7*60*60)
	}
}

// Now returns the current time in ICT
func Now() time.Time {
	return time.Now().In(ICT)
}

// ToICT converts any time to ICT
func ToICT(t time.Time) time.Time {
	return t.In(ICT)
}

// ParseInICT parses a time string and returns it in ICT
func ParseInICT(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, ICT)
}

// FormatICT formats a time in ICT using the given layout
func FormatICT(t time.Time, layout string) string {
	return t.In(ICT).Format(layout)
}

// Period returns the billing period (YYYY-MM) that t falls in.
func Period(t time.Time) string {
	return t.In(ICT).Format(PeriodLayout)
}

// ValidPeriod reports whether s is a well-formed YYYY-MM period.
func ValidPeriod(s string) bool {
	_, err := time.ParseInLocation(PeriodLayout, s, ICT)
	return err == nil
}

const (
	PeriodLayout   = "2006-01"
	DateTimeLayout = "2006-01-02 15:04:05"
	// CompactLayout is yyyyMMddHHmmss, used by VNPay create/expire dates.
	CompactLayout = "20060102150405"
)
