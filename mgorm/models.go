package mgorm

import (
	"time"

	"github.com/gaelgael5/mycoach-sub001/account"
	"github.com/gaelgael5/mycoach-sub001/audit"
	"github.com/gaelgael5/mycoach-sub001/otp"
	"github.com/gaelgael5/mycoach-sub001/privacy"
)

// Encrypted columns are sized at twice the plaintext maximum plus the fixed
// envelope overhead. Converters below are the single place where plaintext
// meets ciphertext; nothing above this layer sees an envelope.

type gormUser struct {
	ID        string `gorm:"primaryKey"`
	Role      string `gorm:"index"`
	Email     string `gorm:"uniqueIndex"`
	Phone     string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`

	PhoneVerified   bool
	PhoneVerifiedAt *time.Time

	FirstName     string  `gorm:"type:varchar(512)"`
	LastName      string  `gorm:"type:varchar(512)"`
	BirthDate     *string `gorm:"type:varchar(128)"`
	Notes         *string `gorm:"type:text"`
	HealthAnswers *string `gorm:"type:text"`
}

func (gormUser) TableName() string { return "users" }

func fromAccountUser(cipher *privacy.Cipher, u *account.User) (*gormUser, error) {
	if u == nil {
		return nil, nil
	}

	firstName, err := cipher.Encrypt(privacy.DomainField, u.FirstName)
	if err != nil {
		return nil, err
	}
	lastName, err := cipher.Encrypt(privacy.DomainField, u.LastName)
	if err != nil {
		return nil, err
	}
	birthDate, err := cipher.EncryptPtr(privacy.DomainField, u.BirthDate)
	if err != nil {
		return nil, err
	}
	notes, err := cipher.EncryptPtr(privacy.DomainField, u.Notes)
	if err != nil {
		return nil, err
	}

	var answers *string
	if len(u.HealthAnswers) > 0 {
		raw := string(u.HealthAnswers)
		answers, err = cipher.EncryptPtr(privacy.DomainField, &raw)
		if err != nil {
			return nil, err
		}
	}

	return &gormUser{
		ID:              u.ID,
		Role:            string(u.Role),
		Email:           u.Email,
		Phone:           u.Phone,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
		DeletedAt:       u.DeletedAt,
		PhoneVerified:   u.PhoneVerified,
		PhoneVerifiedAt: u.PhoneVerifiedAt,
		FirstName:       firstName,
		LastName:        lastName,
		BirthDate:       birthDate,
		Notes:           notes,
		HealthAnswers:   answers,
	}, nil
}

func toAccountUser(cipher *privacy.Cipher, gu *gormUser) (*account.User, error) {
	if gu == nil {
		return nil, nil
	}

	firstName, err := cipher.Decrypt(privacy.DomainField, gu.FirstName)
	if err != nil {
		return nil, err
	}
	lastName, err := cipher.Decrypt(privacy.DomainField, gu.LastName)
	if err != nil {
		return nil, err
	}
	birthDate, err := cipher.DecryptPtr(privacy.DomainField, gu.BirthDate)
	if err != nil {
		return nil, err
	}
	notes, err := cipher.DecryptPtr(privacy.DomainField, gu.Notes)
	if err != nil {
		return nil, err
	}

	var answers account.JSON
	if gu.HealthAnswers != nil {
		raw, err := cipher.Decrypt(privacy.DomainField, *gu.HealthAnswers)
		if err != nil {
			return nil, err
		}
		answers = account.JSON(raw)
	}

	return &account.User{
		ID:              gu.ID,
		Role:            account.Role(gu.Role),
		Email:           gu.Email,
		Phone:           gu.Phone,
		CreatedAt:       gu.CreatedAt,
		UpdatedAt:       gu.UpdatedAt,
		DeletedAt:       gu.DeletedAt,
		PhoneVerified:   gu.PhoneVerified,
		PhoneVerifiedAt: gu.PhoneVerifiedAt,
		FirstName:       firstName,
		LastName:        lastName,
		BirthDate:       birthDate,
		Notes:           notes,
		HealthAnswers:   answers,
	}, nil
}

type gormMeasurement struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Kind      string `gorm:"index"`
	Value     string `gorm:"type:varchar(256)"`
	Unit      string
	TakenAt   time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (gormMeasurement) TableName() string { return "measurements" }

func fromAccountMeasurement(cipher *privacy.Cipher, m *account.Measurement) (*gormMeasurement, error) {
	if m == nil {
		return nil, nil
	}
	value, err := cipher.Encrypt(privacy.DomainField, m.Value)
	if err != nil {
		return nil, err
	}
	return &gormMeasurement{
		ID:        m.ID,
		UserID:    m.UserID,
		Kind:      m.Kind,
		Value:     value,
		Unit:      m.Unit,
		TakenAt:   m.TakenAt,
		CreatedAt: m.CreatedAt,
	}, nil
}

func toAccountMeasurement(cipher *privacy.Cipher, gm *gormMeasurement) (*account.Measurement, error) {
	if gm == nil {
		return nil, nil
	}
	value, err := cipher.Decrypt(privacy.DomainField, gm.Value)
	if err != nil {
		return nil, err
	}
	return &account.Measurement{
		ID:        gm.ID,
		UserID:    gm.UserID,
		Kind:      gm.Kind,
		Value:     value,
		Unit:      gm.Unit,
		TakenAt:   gm.TakenAt,
		CreatedAt: gm.CreatedAt,
	}, nil
}

type gormOAuthConnection struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"index:idx_oauth_user_provider,unique"`
	Provider     string `gorm:"index:idx_oauth_user_provider,unique"`
	AccessToken  string `gorm:"type:text"`
	RefreshToken string `gorm:"type:text"`
	TokenExpiry  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (gormOAuthConnection) TableName() string { return "oauth_connections" }

func fromAccountConnection(cipher *privacy.Cipher, c *account.OAuthConnection) (*gormOAuthConnection, error) {
	if c == nil {
		return nil, nil
	}
	access, err := cipher.Encrypt(privacy.DomainToken, c.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := cipher.Encrypt(privacy.DomainToken, c.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &gormOAuthConnection{
		ID:           c.ID,
		UserID:       c.UserID,
		Provider:     c.Provider,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenExpiry:  c.TokenExpiry,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}, nil
}

func toAccountConnection(cipher *privacy.Cipher, gc *gormOAuthConnection) (*account.OAuthConnection, error) {
	if gc == nil {
		return nil, nil
	}
	access, err := cipher.Decrypt(privacy.DomainToken, gc.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := cipher.Decrypt(privacy.DomainToken, gc.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &account.OAuthConnection{
		ID:           gc.ID,
		UserID:       gc.UserID,
		Provider:     gc.Provider,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenExpiry:  gc.TokenExpiry,
		CreatedAt:    gc.CreatedAt,
		UpdatedAt:    gc.UpdatedAt,
	}, nil
}

type gormPhoneVerification struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index"`
	Phone      string `gorm:"index"`
	CodeHash   []byte
	ExpiresAt  time.Time `gorm:"index"`
	Attempts   int
	VerifiedAt *time.Time
	CreatedAt  time.Time `gorm:"index"`
}

func (gormPhoneVerification) TableName() string { return "phone_verifications" }

func fromOTPVerification(v *otp.PhoneVerification) *gormPhoneVerification {
	if v == nil {
		return nil
	}
	return &gormPhoneVerification{
		ID:         v.ID,
		UserID:     v.UserID,
		Phone:      v.Phone,
		CodeHash:   v.CodeHash,
		ExpiresAt:  v.ExpiresAt,
		Attempts:   v.Attempts,
		VerifiedAt: v.VerifiedAt,
		CreatedAt:  v.CreatedAt,
	}
}

func toOTPVerification(gv *gormPhoneVerification) *otp.PhoneVerification {
	if gv == nil {
		return nil
	}
	return &otp.PhoneVerification{
		ID:         gv.ID,
		UserID:     gv.UserID,
		Phone:      gv.Phone,
		CodeHash:   gv.CodeHash,
		ExpiresAt:  gv.ExpiresAt,
		Attempts:   gv.Attempts,
		VerifiedAt: gv.VerifiedAt,
		CreatedAt:  gv.CreatedAt,
	}
}

type gormAuditEvent struct {
	ID        string `gorm:"primaryKey"`
	Type      string `gorm:"index"`
	ActorID   string `gorm:"index"`
	SubjectID string `gorm:"index"`
	Status    string `gorm:"index"`
	Message   string
	Metadata  account.JSON `gorm:"type:json"`
	CreatedAt time.Time    `gorm:"index"`
}

func (gormAuditEvent) TableName() string { return "audit_events" }

func fromAuditEvent(e *audit.Event) *gormAuditEvent {
	if e == nil {
		return nil
	}
	return &gormAuditEvent{
		ID:        e.ID,
		Type:      e.Type,
		ActorID:   e.ActorID,
		SubjectID: e.SubjectID,
		Status:    e.Status,
		Message:   e.Message,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}

func toAuditEvent(ge *gormAuditEvent) audit.Event {
	return audit.Event{
		ID:        ge.ID,
		Type:      ge.Type,
		ActorID:   ge.ActorID,
		SubjectID: ge.SubjectID,
		Status:    ge.Status,
		Message:   ge.Message,
		Metadata:  ge.Metadata,
		CreatedAt: ge.CreatedAt,
	}
}
