package booking

import "context"

// AvailabilityChecker 档期检查：判断某车辆在候选区间内是否存在
// 重叠的 active 预订。只看档期，不看车辆本身是否下架 ——
// "车辆暂不出租"与"日期已被订走"是两类不同的失败，由 Service 分开上报。
//
// 该检查是无锁读，允许与在途写入存在短暂不一致；
// 防冲突的最终依据是存储层的原子 check-and-insert。
type AvailabilityChecker struct {
	repo Repository
}

func NewAvailabilityChecker(repo Repository) *AvailabilityChecker {
	return &AvailabilityChecker{repo: repo}
}

// IsAvailable 判断 vehicleID 在 rng 上是否可订。
// excludeID 非空时排除该预订自身（状态流转复核档期时使用）。
func (c *AvailabilityChecker) IsAvailable(ctx context.Context, vehicleID string, rng DateRange, excludeID string) (bool, error) {
	overlapping, err := c.repo.FindActiveOverlapping(ctx, vehicleID, rng, excludeID)
	if err != nil {
		return false, err
	}
	return len(overlapping) == 0, nil
}
