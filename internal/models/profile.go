package models

import "gorm.io/gorm"

const (
	DefaultThemePreference = "light"
	DefaultColorTheme      = "green"
)

// Profile is the user identity record notifications are addressed to.
type Profile struct {
	BaseModel

	DisplayName     string `gorm:"size:255" json:"display_name"`
	Email           string `gorm:"size:255;index" json:"email"`
	ThemePreference string `gorm:"type:text;not null;default:'light'" json:"theme_preference"`
	ColorTheme      string `gorm:"type:text;not null;default:'green'" json:"color_theme"`
}

// BeforeCreate assigns the identifier and fills presentation defaults.
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if p.ThemePreference == "" {
		p.ThemePreference = DefaultThemePreference
	}
	if p.ColorTheme == "" {
		p.ColorTheme = DefaultColorTheme
	}
	return nil
}
