package models

import (
	"time"

	"gorm.io/gorm"
)

// Target is an addressable remote endpoint. A target is independent of any
// job; many jobs may reference it. Each target exposes one or more
// communication methods and the engine picks one per job.
type Target struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string    `gorm:"not null;type:varchar(255)" json:"name"`
	Type        string    `gorm:"not null;type:varchar(50)" json:"type"` // linux, windows, network, database, snmp, mail
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Methods []CommunicationMethod `gorm:"foreignKey:TargetID" json:"methods,omitempty"`
}

func (Target) TableName() string {
	return "targets"
}

// CommunicationMethod describes one way of reaching a target. Credential
// material is never stored here, only a reference resolved by the secret
// provider at dial time.
type CommunicationMethod struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TargetID      string    `gorm:"not null;type:varchar(36);index" json:"target_id"`
	Protocol      string    `gorm:"not null;type:varchar(50)" json:"protocol"` // ssh, winrm, telnet, local, sql, snmp, http, smtp
	Host          string    `gorm:"not null;type:varchar(255)" json:"host"`
	Port          int       `gorm:"default:0" json:"port"` // 0 = protocol default
	CredentialRef string    `gorm:"type:varchar(255)" json:"credential_ref"`
	Settings      string    `gorm:"type:jsonb" json:"settings"` // protocol-specific options as JSON
	CreatedAt     time.Time `json:"created_at"`
}

func (CommunicationMethod) TableName() string {
	return "communication_methods"
}
