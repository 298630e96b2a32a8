package booking

import "errors"

// 预订引擎错误分类。Service 的每个失败都会映射为其中之一，
// 传输层按类别决定 HTTP 状态码与用户提示文案。
var (
	ErrInvalidRange       = errors.New("return date must be after pickup date")
	ErrInvalidRate        = errors.New("daily rate must be positive")
	ErrDateConflict       = errors.New("those dates are already booked for this vehicle")
	ErrVehicleUnavailable = errors.New("vehicle is not available for rent")
	ErrNotFound           = errors.New("record not found")
	ErrUnauthorized       = errors.New("not allowed to perform this action")
	ErrAlreadyTerminal    = errors.New("reservation is already completed or cancelled")
	ErrNotConfirmed       = errors.New("only confirmed reservations can be completed")
	ErrConflict           = errors.New("reservation was modified concurrently, please retry")
	ErrTimeout            = errors.New("storage operation timed out")
	ErrServiceUnavailable = errors.New("storage temporarily unavailable")
)
