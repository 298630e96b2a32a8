package vehicle

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, v *Vehicle) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *Repo) Update(ctx context.Context, v *Vehicle) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Save(v).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListParams 目录查询条件。Search 对品牌/型号做模糊匹配。
type ListParams struct {
	Brand         string
	Search        string
	OnlyAvailable bool
	Offset        int
	Limit         int
}

// List 支持按品牌过滤 + 模糊搜索 + 分页，按品牌排序（前端列表页语义）。
func (r *Repo) List(ctx context.Context, p ListParams) ([]Vehicle, int64, error) {
	if r == nil || r.db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q := r.db.WithContext(ctx).Model(&Vehicle{})
	if p.OnlyAvailable {
		q = q.Where("is_available = ?", true)
	}
	if p.Brand != "" {
		q = q.Where("brand = ?", p.Brand)
	}
	if p.Search != "" {
		like := "%" + p.Search + "%"
		q = q.Where("brand LIKE ? OR model LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var vehicles []Vehicle
	if err := q.Order("brand asc, model asc").Offset(p.Offset).Limit(p.Limit).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}
