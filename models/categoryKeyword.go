package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
)

// CategoryKeyword maps a church-scoped keyword to a subcategory. The active
// set is the input corpus of the keyword classification tier.
type CategoryKeyword struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ChurchId   string    `gorm:"index;size:64;not null" json:"church_id"`
	Keyword    string    `gorm:"index;size:100;not null" json:"keyword" binding:"required"`
	CategoryId int       `gorm:"index;not null" json:"category_id" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCategoryKeyword struct {
	Keyword    string `json:"keyword" binding:"required"`
	CategoryId int    `json:"category_id" binding:"required"`
}

func (k CategoryKeyword) GetId() int {
	return k.ID
}

func (input *NewCategoryKeyword) validate(ctx context.Context, churchId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateResourceId[CategoryKeyword](ctx, churchId, id); err != nil {
			return err
		}
	}
	if strings.TrimSpace(input.Keyword) == "" {
		return utils.NewValidationError("keyword", "must not be blank")
	}
	if err := utils.ValidateResourceId[Category](ctx, churchId, input.CategoryId); err != nil {
		return errors.New("category not found")
	}
	if err := utils.ValidateUnique[CategoryKeyword](ctx, churchId, "keyword", strings.ToLower(input.Keyword), id); err != nil {
		return err
	}
	return nil
}

func CreateCategoryKeyword(ctx context.Context, input *NewCategoryKeyword) (*CategoryKeyword, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if err := input.validate(ctx, churchId, 0); err != nil {
		return nil, err
	}

	keyword := CategoryKeyword{
		ChurchId:   churchId,
		Keyword:    strings.ToLower(strings.TrimSpace(input.Keyword)),
		CategoryId: input.CategoryId,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&keyword).Error
	if err != nil {
		return nil, err
	}
	return &keyword, nil
}

func UpdateCategoryKeyword(ctx context.Context, id int, input *NewCategoryKeyword) (*CategoryKeyword, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if err := input.validate(ctx, churchId, id); err != nil {
		return nil, err
	}

	keyword, err := utils.FetchModel[CategoryKeyword](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&keyword).Updates(map[string]interface{}{
		"Keyword":    strings.ToLower(strings.TrimSpace(input.Keyword)),
		"CategoryId": input.CategoryId,
	}).Error
	if err != nil {
		return nil, err
	}
	return keyword, nil
}

func MarkCategoryKeywordActive(ctx context.Context, id int, isActive bool) (*CategoryKeyword, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	keyword, err := utils.FetchModel[CategoryKeyword](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&keyword).Updates(CategoryKeyword{IsActive: &isActive}).Error
	if err != nil {
		return nil, err
	}
	return keyword, nil
}

func DeleteCategoryKeyword(ctx context.Context, id int) (*CategoryKeyword, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	keyword, err := utils.FetchModel[CategoryKeyword](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Delete(&keyword).Error
	if err != nil {
		return nil, err
	}
	return keyword, nil
}

func getActiveKeywords(ctx context.Context, churchId string) ([]*CategoryKeyword, error) {
	db := config.GetDB()
	var keywords []*CategoryKeyword
	err := db.WithContext(ctx).
		Where("church_id = ? AND is_active = ?", churchId, true).
		Find(&keywords).Error
	if err != nil {
		return nil, err
	}
	return keywords, nil
}
