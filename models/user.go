package models

import "time"

type UserAccount struct {
	JsonModel
	Name   string `json:"name"`
	Email  string `json:"email" gorm:"unique"`
	Banned bool   `gorm:"default:false" json:"-"`
	LastIp string `json:"-"`
	//"STARTED_AUTH", "FINISHED_AUTH"
	Status              string     `json:"-"`
	Platform            Platform   `sql:"type:ENUM('ios', 'android', 'web')" json:"platform"`
	ConfirmedDeleteDate *time.Time `json:"-"`
	// Notifications settings
	ReceiveNotifications bool `json:"receive_notifications"`
	// user app image/avatar
	AvatarURL string `json:"avatar_url"`

	FullBodyAvatarSet bool `json:"full_body_avatar_set"`
	// user full body avatar for try ons!
	UserFullBodyImagePath *string `json:"-"`

	// short LLM-distilled description of the user's taste, reused in prompts
	StyleSignature *string `gorm:"type:text" json:"style_signature"`
}

type UserPushToken struct {
	JsonModel
	UserAccountID uint
	UserAccount   UserAccount `json:"user_account"`
	Platform      Platform    `sql:"type:ENUM('ios', 'android', 'web')" json:"platform"`
	Token         string      `json:"token"`
	Active        bool        `gorm:"default:false" json:"-"`
}

type UserPushIn struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
