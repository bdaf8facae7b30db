package directory

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Directory is the user/role lookup the resolver reads at send time.
type Directory interface {
	MembersOf(ctx context.Context, tag GroupTag) ([]int64, error)
	// Known returns the subset of ids that belong to active users.
	Known(ctx context.Context, ids []int64) ([]int64, error)
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) MembersOf(ctx context.Context, tag GroupTag) ([]int64, error) {
	roles, ok := tag.Roles()
	if !ok {
		return nil, ErrUnknownGroup
	}

	q := r.db.WithContext(ctx).
		Model(&User{}).
		Where("active = ?", true)
	if roles != nil {
		q = q.Where("role IN ?", roles)
	}

	var ids []int64
	if err := q.Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *UserRepository) Known(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var known []int64
	err := r.db.WithContext(ctx).
		Model(&User{}).
		Where("id IN ? AND active = ?", ids, true).
		Order("id ASC").
		Pluck("id", &known).Error
	if err != nil {
		return nil, err
	}
	return known, nil
}

// Upsert inserts users or refreshes name, role and active for existing
// emails, then returns the stored rows ordered by id.
func (r *UserRepository) Upsert(ctx context.Context, users []User) ([]User, error) {
	if len(users) == 0 {
		return nil, nil
	}
	rows := make([]User, len(users))
	copy(rows, users)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "role", "active", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return nil, err
	}

	emails := make([]string, 0, len(rows))
	for _, u := range rows {
		emails = append(emails, u.Email)
	}
	var stored []User
	if err := r.db.WithContext(ctx).Where("email IN ?", emails).Order("id ASC").Find(&stored).Error; err != nil {
		return nil, err
	}
	return stored, nil
}
