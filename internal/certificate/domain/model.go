package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Variant string

const (
	VariantHTML  Variant = "html"
	VariantImage Variant = "image"
)

// TextBox positions one field on an image-variant template background.
// Size is the glyph height in pixels, Color a #rrggbb hex string and
// Rotation degrees clockwise about the anchor point.
type TextBox struct {
	Field    string  `json:"field"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Size     int     `json:"size"`
	Font     string  `json:"font,omitempty"`
	Color    string  `json:"color,omitempty"`
	Align    string  `json:"align,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
}

// Template describes how a certificate is laid out. HTML variants carry a
// body with {{ field }} placeholders, image variants a background plus
// text boxes.
type Template struct {
	ID             snowflake.ID                 `gorm:"primaryKey" json:"id"`
	EventID        snowflake.ID                 `gorm:"not null;index" json:"event_id"`
	Name           string                       `gorm:"type:text;not null" json:"name"`
	Variant        Variant                      `gorm:"type:text;not null;default:html" json:"variant"`
	BodyHTML       string                       `gorm:"type:text" json:"body_html,omitempty"`
	BackgroundPath string                       `gorm:"type:text" json:"background_path,omitempty"`
	Boxes          datatypes.JSONSlice[TextBox] `json:"boxes,omitempty"`
	IsDefault      bool                         `gorm:"not null;default:false" json:"is_default"`
	CreatedAt      time.Time                    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time                    `gorm:"not null" json:"updated_at"`
}

func (Template) TableName() string { return "certificate_templates" }

// Certificate is issued at most once per participant per event. The
// rendered body is persisted so re-downloads are byte-stable even if the
// template changes later.
type Certificate struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	CertificateNumber string       `gorm:"type:text;not null;uniqueIndex" json:"certificate_number"`
	ParticipantID     snowflake.ID `gorm:"not null;uniqueIndex:idx_certificates_participant_event" json:"participant_id"`
	EventID           snowflake.ID `gorm:"not null;uniqueIndex:idx_certificates_participant_event;index" json:"event_id"`
	TemplateID        snowflake.ID `gorm:"not null" json:"template_id"`
	Variant           Variant      `gorm:"type:text;not null" json:"variant"`
	RecipientName     string       `gorm:"type:text;not null" json:"recipient_name"`
	EventName         string       `gorm:"type:text;not null" json:"event_name"`
	RenderedHTML      string       `gorm:"type:text" json:"-"`
	IssuedAt          time.Time    `gorm:"not null" json:"issued_at"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

func (Certificate) TableName() string { return "certificates" }
