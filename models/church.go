package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
	"gorm.io/gorm"
)

type Church struct {
	ID        string    `gorm:"primary_key;size:64" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Charity   string    `gorm:"size:100" json:"charity_number"`
	Timezone  string    `gorm:"size:64" json:"timezone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ChurchSettings is the per-church configuration row. It is loaded explicitly
// per operation (never ambient state) and cached in Redis.
type ChurchSettings struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	ChurchId             string          `gorm:"uniqueIndex;size:64;not null" json:"church_id"`
	DefaultFundId        int             `gorm:"default:0" json:"default_fund_id"`
	AiCategorization     *bool           `gorm:"not null;default:false" json:"ai_categorization"`
	AutoApproveThreshold decimal.Decimal `gorm:"type:decimal(5,4);default:0.95" json:"auto_approve_threshold"`
	ImportRetentionDays  int             `gorm:"default:90" json:"import_retention_days"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewChurch struct {
	Name     string `json:"name" binding:"required"`
	Charity  string `json:"charity_number"`
	Timezone string `json:"timezone"`
}

func CreateChurch(ctx context.Context, input *NewChurch) (*Church, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	church := Church{
		ID:       uuid.NewString(),
		Name:     input.Name,
		Charity:  input.Charity,
		Timezone: input.Timezone,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&church).Error; err != nil {
			return err
		}
		// settings row always exists alongside the church
		settings := ChurchSettings{
			ChurchId:             church.ID,
			AiCategorization:     utils.NewFalse(),
			AutoApproveThreshold: decimal.NewFromFloat(0.95),
			ImportRetentionDays:  90,
		}
		return tx.Create(&settings).Error
	})
	if err != nil {
		return nil, err
	}
	return &church, nil
}

func settingsCacheKey(churchId string) string {
	return "ChurchSettings:" + churchId
}

// GetChurchSettings reads the settings row, redis or db.
func GetChurchSettings(ctx context.Context, churchId string) (*ChurchSettings, error) {
	if churchId == "" {
		return nil, errors.New("church id is required")
	}

	var settings ChurchSettings
	exists, err := config.GetRedisObject(settingsCacheKey(churchId), &settings)
	if err != nil {
		return nil, err
	}
	if exists {
		return &settings, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("church_id = ?", churchId).First(&settings).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := config.SetRedisObject(settingsCacheKey(churchId), &settings, 0); err != nil {
		return nil, err
	}
	return &settings, nil
}

type UpdateChurchSettingsInput struct {
	DefaultFundId        *int             `json:"default_fund_id"`
	AiCategorization     *bool            `json:"ai_categorization"`
	AutoApproveThreshold *decimal.Decimal `json:"auto_approve_threshold"`
	ImportRetentionDays  *int             `json:"import_retention_days"`
}

func UpdateChurchSettings(ctx context.Context, input *UpdateChurchSettingsInput) (*ChurchSettings, error) {
	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	db := config.GetDB()
	var settings ChurchSettings
	if err := db.WithContext(ctx).Where("church_id = ?", churchId).First(&settings).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	updates := map[string]interface{}{}
	if input.DefaultFundId != nil {
		if *input.DefaultFundId > 0 {
			if err := utils.ValidateResourceId[Fund](ctx, churchId, *input.DefaultFundId); err != nil {
				return nil, errors.New("default fund not found")
			}
		}
		updates["DefaultFundId"] = *input.DefaultFundId
	}
	if input.AiCategorization != nil {
		updates["AiCategorization"] = *input.AiCategorization
	}
	if input.AutoApproveThreshold != nil {
		t := *input.AutoApproveThreshold
		if t.IsNegative() || t.GreaterThan(decimal.NewFromInt(1)) {
			return nil, utils.NewValidationError("auto_approve_threshold", "must be between 0 and 1")
		}
		updates["AutoApproveThreshold"] = t
	}
	if input.ImportRetentionDays != nil {
		if *input.ImportRetentionDays < 1 {
			return nil, utils.NewValidationError("import_retention_days", "must be at least 1")
		}
		updates["ImportRetentionDays"] = *input.ImportRetentionDays
	}

	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(&settings).Updates(updates).Error; err != nil {
			return nil, err
		}
		if err := config.RemoveRedisKey(settingsCacheKey(churchId)); err != nil {
			return nil, err
		}
	}
	return &settings, nil
}
