package booking

import (
	"fmt"
	"time"
)

// AllowTransition 定义预订状态机的允许流转关系。
var AllowTransition = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	// 终态：不允许从 completed / cancelled 再流转
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
// 自流转不允许：重复取消/重复完成属于调用方错误，必须显式失败。
func CanTransition(from, to Status) bool {
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition 对预订应用状态变更，并维护关键时间字段。
// 失败分类：
// - 取消终态预订 -> ErrAlreadyTerminal
// - 完成非 confirmed 预订 -> ErrNotConfirmed
// 任何流转都不会重新计算 TotalPriceCents。
func ApplyTransition(r *Reservation, to Status, now time.Time) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}
	from := r.Status
	if !CanTransition(from, to) {
		switch {
		case to == StatusCancelled && from.Terminal():
			return ErrAlreadyTerminal
		case to == StatusCompleted:
			return ErrNotConfirmed
		case to == StatusConfirmed && from.Terminal():
			return ErrAlreadyTerminal
		default:
			return fmt.Errorf("invalid reservation status transition: %s -> %s", from, to)
		}
	}

	r.Status = to

	switch to {
	case StatusConfirmed:
		if r.ConfirmedAt == nil {
			t := now
			r.ConfirmedAt = &t
		}
	case StatusCompleted:
		if r.CompletedAt == nil {
			t := now
			r.CompletedAt = &t
		}
	case StatusCancelled:
		if r.CancelledAt == nil {
			t := now
			r.CancelledAt = &t
		}
	}
	return nil
}
