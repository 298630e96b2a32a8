package vehicle

import (
	"context"
	"errors"

	"github.com/NeoDrive/NeoDrive/internal/booking"
	"gorm.io/gorm"
)

// Catalog 把车辆目录适配成预订引擎消费的协作方接口
// （booking.Catalog 与 booking.VehicleSummaryProvider）。
type Catalog struct {
	repo *Repo
}

func NewCatalog(repo *Repo) *Catalog {
	return &Catalog{repo: repo}
}

var (
	_ booking.Catalog                = (*Catalog)(nil)
	_ booking.VehicleSummaryProvider = (*Catalog)(nil)
)

// GetVehicle 返回预订引擎视角的车辆信息；不存在时返回 booking.ErrNotFound。
func (c *Catalog) GetVehicle(ctx context.Context, id string) (*booking.CatalogVehicle, error) {
	v, err := c.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, booking.ErrNotFound
		}
		return nil, err
	}
	return &booking.CatalogVehicle{
		ID:             v.ID,
		DailyRateCents: v.DailyRateCents,
		Currency:       v.Currency,
		FleetAvailable: v.IsAvailable,
	}, nil
}

// VehicleSummary 订单页内嵌的车辆摘要；查不到时返回 nil（摘要缺失不阻塞订单展示）。
func (c *Catalog) VehicleSummary(ctx context.Context, id string) *booking.VehicleSummary {
	v, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil
	}
	return &booking.VehicleSummary{
		ID:       v.ID,
		Brand:    v.Brand,
		Model:    v.Model,
		ImageURL: v.ImageURL,
	}
}
