package models

import (
	"context"
	"errors"
	"time"

	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
)

// Category is a flat fund+category tag, one level of sub-categorization only.
type Category struct {
	ID            int          `gorm:"primary_key" json:"id"`
	ChurchId      string       `gorm:"index;size:64;not null" json:"church_id"`
	Name          string       `gorm:"index;size:100;not null" json:"name" binding:"required"`
	CategoryType  CategoryType `gorm:"size:10;not null" json:"category_type" binding:"required"`
	ParentId      int          `gorm:"index;default:0" json:"parent_id"`
	IsSubcategory *bool        `gorm:"not null;default:false" json:"is_subcategory"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCategory struct {
	Name         string       `json:"name" binding:"required"`
	CategoryType CategoryType `json:"category_type" binding:"required"`
	ParentId     int          `json:"parent_id"`
}

func (c Category) GetId() int {
	return c.ID
}

func (input *NewCategory) validate(ctx context.Context, churchId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if id > 0 {
		if id == input.ParentId {
			return errors.New("self-parent not allowed")
		}
		if err := utils.ValidateResourceId[Category](ctx, churchId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Category](ctx, churchId, "name", input.Name, id); err != nil {
		return err
	}
	switch input.CategoryType {
	case CategoryTypeIncome, CategoryTypeExpense:
	default:
		return utils.NewValidationError("category_type", "invalid category type")
	}
	if input.ParentId > 0 {
		parent, err := utils.FetchModel[Category](ctx, churchId, input.ParentId)
		if err != nil {
			return errors.New("parent category not found")
		}
		// one level only
		if parent.IsSubcategory != nil && *parent.IsSubcategory {
			return errors.New("subcategories cannot have children")
		}
	}
	return nil
}

func CreateCategory(ctx context.Context, input *NewCategory) (*Category, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if err := input.validate(ctx, churchId, 0); err != nil {
		return nil, err
	}

	isSub := utils.NewFalse()
	if input.ParentId > 0 {
		isSub = utils.NewTrue()
	}

	category := Category{
		ChurchId:      churchId,
		Name:          input.Name,
		CategoryType:  input.CategoryType,
		ParentId:      input.ParentId,
		IsSubcategory: isSub,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&category).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func UpdateCategory(ctx context.Context, id int, input *NewCategory) (*Category, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if err := input.validate(ctx, churchId, id); err != nil {
		return nil, err
	}

	category, err := utils.FetchModel[Category](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	isSub := input.ParentId > 0

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&category).Updates(map[string]interface{}{
		"Name":          input.Name,
		"CategoryType":  input.CategoryType,
		"ParentId":      input.ParentId,
		"IsSubcategory": isSub,
	}).Error
	if err != nil {
		return nil, err
	}
	return category, nil
}

func DeleteCategory(ctx context.Context, id int) (*Category, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	category, err := utils.FetchModel[Category](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Category](ctx, churchId, "parent_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("this category has subcategories")
	}

	count, err = utils.ResourceCountWhere[Transaction](ctx, churchId, "category_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("this category has transactions")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Delete(&category).Error
	if err != nil {
		return nil, err
	}
	return category, nil
}

func GetCategory(ctx context.Context, id int) (*Category, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}
	return utils.FetchModel[Category](ctx, churchId, id)
}

// GetLeafCategories returns the categories a row may be classified into:
// subcategories, plus top-level categories that have no children.
func GetLeafCategories(ctx context.Context, churchId string, categoryType CategoryType) ([]*Category, error) {
	db := config.GetDB()

	var all []*Category
	err := db.WithContext(ctx).
		Where("church_id = ? AND category_type = ?", churchId, categoryType).
		Order("name").
		Find(&all).Error
	if err != nil {
		return nil, err
	}

	hasChildren := make(map[int]bool)
	for _, c := range all {
		if c.ParentId > 0 {
			hasChildren[c.ParentId] = true
		}
	}

	var leaves []*Category
	for _, c := range all {
		if !hasChildren[c.ID] {
			leaves = append(leaves, c)
		}
	}
	return leaves, nil
}
