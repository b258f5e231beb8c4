package models

import (
	"context"
	"errors"
	"time"

	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
)

type Donor struct {
	ID            int        `gorm:"primary_key" json:"id"`
	ChurchId      string     `gorm:"index;size:64;not null" json:"church_id"`
	Name          string     `gorm:"index;size:255;not null" json:"name" binding:"required"`
	Email         string     `gorm:"size:255" json:"email"`
	BankReference string     `gorm:"index;size:100" json:"bank_reference"`
	IsActive      *bool      `gorm:"not null;default:true" json:"is_active"`
	GiftAid       *bool      `gorm:"not null;default:false" json:"gift_aid"`
	GiftAidSigned *time.Time `json:"gift_aid_signed_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDonor struct {
	Name          string     `json:"name" binding:"required"`
	Email         string     `json:"email"`
	BankReference string     `json:"bank_reference"`
	GiftAid       *bool      `json:"gift_aid"`
	GiftAidSigned *time.Time `json:"gift_aid_signed_at"`
}

func (d Donor) GetId() int {
	return d.ID
}

// validate input for both create & update. (id = 0 for create)

func (input *NewDonor) validate(ctx context.Context, churchId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateResourceId[Donor](ctx, churchId, id); err != nil {
			return err
		}
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "invalid email address")
	}
	// bank reference is the exact-match donor key; must be unique per church
	if input.BankReference != "" {
		if err := utils.ValidateUnique[Donor](ctx, churchId, "bank_reference", input.BankReference, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateDonor(ctx context.Context, input *NewDonor) (*Donor, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if err := input.validate(ctx, churchId, 0); err != nil {
		return nil, err
	}

	giftAid := utils.NewFalse()
	if input.GiftAid != nil {
		giftAid = input.GiftAid
	}

	donor := Donor{
		ChurchId:      churchId,
		Name:          input.Name,
		Email:         input.Email,
		BankReference: input.BankReference,
		IsActive:      utils.NewTrue(),
		GiftAid:       giftAid,
		GiftAidSigned: input.GiftAidSigned,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&donor).Error
	if err != nil {
		return nil, err
	}
	return &donor, nil
}

func UpdateDonor(ctx context.Context, id int, input *NewDonor) (*Donor, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if err := input.validate(ctx, churchId, id); err != nil {
		return nil, err
	}

	donor, err := utils.FetchModel[Donor](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"Name":          input.Name,
		"Email":         input.Email,
		"BankReference": input.BankReference,
	}
	if input.GiftAid != nil {
		updates["GiftAid"] = *input.GiftAid
		updates["GiftAidSigned"] = input.GiftAidSigned
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&donor).Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return donor, nil
}

func MarkDonorActive(ctx context.Context, id int, isActive bool) (*Donor, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	donor, err := utils.FetchModel[Donor](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&donor).Updates(Donor{IsActive: &isActive}).Error
	if err != nil {
		return nil, err
	}
	return donor, nil
}

func GetDonor(ctx context.Context, id int) (*Donor, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}
	return utils.FetchModel[Donor](ctx, churchId, id)
}

func GetDonors(ctx context.Context, name *string) ([]*Donor, error) {

	db := config.GetDB()
	var results []*Donor

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	dbCtx := db.WithContext(ctx).Where("church_id = ?", churchId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
