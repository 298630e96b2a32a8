package booking

import (
	"fmt"
	"time"
)

// DateFormat 取还车日期的传输格式。
const DateFormat = "2006-01-02"

// DateRange 半开日期区间 [Pickup, Return)。
// 两端都是 UTC 零点对齐的日历日期；引擎内部不做时区换算。
type DateRange struct {
	Pickup time.Time
	Return time.Time
}

// NewDateRange 构造日期区间；return <= pickup 时返回 ErrInvalidRange。
func NewDateRange(pickup, ret time.Time) (DateRange, error) {
	p := truncateToDay(pickup)
	r := truncateToDay(ret)
	if !r.After(p) {
		return DateRange{}, ErrInvalidRange
	}
	return DateRange{Pickup: p, Return: r}, nil
}

// ParseDateRange 从 "2006-01-02" 字符串构造日期区间。
func ParseDateRange(pickup, ret string) (DateRange, error) {
	p, err := time.ParseInLocation(DateFormat, pickup, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: bad pickup date %q", ErrInvalidRange, pickup)
	}
	r, err := time.ParseInLocation(DateFormat, ret, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: bad return date %q", ErrInvalidRange, ret)
	}
	return NewDateRange(p, r)
}

// Days 区间覆盖的整天数（恒 >= 1）。
func (r DateRange) Days() int {
	return int(r.Return.Sub(r.Pickup) / (24 * time.Hour))
}

// Overlaps 半开区间重叠判定：pickupA < returnB && pickupB < returnA。
// 一单的还车日等于另一单的取车日不算重叠（支持当天周转）。
func (r DateRange) Overlaps(o DateRange) bool {
	return r.Pickup.Before(o.Return) && o.Pickup.Before(r.Return)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Pickup.Format(DateFormat), r.Return.Format(DateFormat))
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
