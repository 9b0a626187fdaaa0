package model

import "time"

// Themes a profile may use. Rendering is somebody else's job; we only
// guard the value.
var Themes = map[string]bool{
	"default": true,
	"dark":    true,
	"light":   true,
	"minimal": true,
	"bold":    true,
}

const DefaultTheme = "default"

type SocialLinks struct {
	LinkedIn  string `json:"linkedin,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	Facebook  string `json:"facebook,omitempty"`
	GitHub    string `json:"github,omitempty"`
	YouTube   string `json:"youtube,omitempty"`
	TikTok    string `json:"tiktok,omitempty"`
	WhatsApp  string `json:"whatsapp,omitempty"`
}

// CustomLink is a free-form labelled link shown under the profile.
type CustomLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Service is an offering listed on the card. IsCustom marks user-typed
// entries as opposed to picks from the predefined catalogue.
type Service struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsCustom bool   `json:"isCustom"`
}

// ProfileContent is everything a user can edit on their card.
type ProfileContent struct {
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	Bio         string       `json:"bio"`
	Company     string       `json:"company"`
	Position    string       `json:"position"`
	AvatarURL   string       `json:"avatarUrl"`
	BannerURL   string       `json:"bannerUrl"`
	Phone       string       `json:"phone"`
	Email       string       `json:"email"`
	Location    string       `json:"location"`
	Website     string       `json:"website"`
	Social      SocialLinks  `json:"social"`
	CustomLinks []CustomLink `json:"customLinks"`
	Services    []Service    `json:"services"`
}

// Profile is the public card bound to exactly one resolve code.
//
// A profile is only valid while its code exists, is assigned, and is
// assigned to the same user. Anything else is an orphan, and the
// reconciliation sweep deletes it.
type Profile struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"userId"`
	ResolveCodeID int64  `json:"resolveCodeId"`
	Slug          string `json:"slug"`
	ProfileContent
	IsPublic  bool      `json:"isPublic"`
	Theme     string    `json:"theme"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DisplayName joins first and last name.
func (p *Profile) DisplayName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// ProfileAttrs is the payload of a claim: the initial card content.
type ProfileAttrs struct {
	ProfileContent
	Theme    string `json:"theme"`
	IsPublic *bool  `json:"isPublic"`
}

// ProfileUpdate is a partial edit. Nil pointers leave the field unchanged.
// The slug and the code binding can't be edited.
type ProfileUpdate struct {
	FirstName   *string       `json:"firstName"`
	LastName    *string       `json:"lastName"`
	Bio         *string       `json:"bio"`
	Company     *string       `json:"company"`
	Position    *string       `json:"position"`
	Phone       *string       `json:"phone"`
	Email       *string       `json:"email"`
	Location    *string       `json:"location"`
	Website     *string       `json:"website"`
	Social      *SocialLinks  `json:"social"`
	CustomLinks *[]CustomLink `json:"customLinks"`
	Services    *[]Service    `json:"services"`
	Theme       *string       `json:"theme"`
	IsPublic    *bool         `json:"isPublic"`
}

// ProfileListing is a row of the dashboard / admin list.
type ProfileListing struct {
	Profile
	Code   string `json:"code"`
	Visits int    `json:"visits"`
}
