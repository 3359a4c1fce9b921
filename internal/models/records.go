package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Audit columns shared by every imported table
type Audit struct {
	CreatedBy     string         `json:"created_by" gorm:"type:varchar(64);index"`
	CreatedByName string         `json:"created_by_name,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// Site is a construction site; it scopes every site-bound entity
type Site struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Name     string `json:"name" gorm:"not null;uniqueIndex"`
	Location string `json:"location,omitempty"`
	IsActive bool   `json:"is_active" gorm:"default:true"`
	Audit
}

// TableName returns the table name for Site
func (Site) TableName() string {
	return "sites"
}

// Laborer is worker master data
type Laborer struct {
	ID        string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Name      string     `json:"name" gorm:"not null;uniqueIndex:idx_laborer_name_phone"`
	Phone     string     `json:"phone,omitempty" gorm:"uniqueIndex:idx_laborer_name_phone"`
	Category  string     `json:"category" gorm:"not null"`
	DailyRate float64    `json:"daily_rate" gorm:"not null"`
	JoinDate  *time.Time `json:"join_date,omitempty" gorm:"type:date"`
	IsActive  bool       `json:"is_active" gorm:"default:true"`
	Address   string     `json:"address,omitempty"`
	Audit
}

// TableName returns the table name for Laborer
func (Laborer) TableName() string {
	return "laborers"
}

// Attendance is one laborer's attendance on one day at one site
type Attendance struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SiteID        string    `json:"site_id" gorm:"type:uuid;not null;index"`
	LaborerID     string    `json:"laborer_id" gorm:"type:uuid;not null;uniqueIndex:idx_attendance_laborer_date"`
	Date          time.Time `json:"date" gorm:"type:date;not null;uniqueIndex:idx_attendance_laborer_date"`
	Status        string    `json:"status" gorm:"not null"`
	InTime        *string   `json:"in_time,omitempty" gorm:"type:time"`
	OutTime       *string   `json:"out_time,omitempty" gorm:"type:time"`
	OvertimeHours float64   `json:"overtime_hours"`
	Notes         string    `json:"notes,omitempty"`
	Audit
}

// TableName returns the table name for Attendance
func (Attendance) TableName() string {
	return "attendance"
}

// Expense is a site expense entry
type Expense struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SiteID      string    `json:"site_id" gorm:"type:uuid;not null;index"`
	Date        time.Time `json:"date" gorm:"type:date;not null"`
	Category    string    `json:"category" gorm:"not null"`
	Description string    `json:"description" gorm:"not null"`
	Quantity    *float64  `json:"quantity,omitempty"`
	Rate        *float64  `json:"rate,omitempty"`
	Days        *float64  `json:"days,omitempty"`
	Amount      float64   `json:"amount" gorm:"not null"`
	Vendor      string    `json:"vendor,omitempty"`
	PaymentMode string    `json:"payment_mode,omitempty"`
	Audit
}

// TableName returns the table name for Expense
func (Expense) TableName() string {
	return "expenses"
}

// Payment is a wage payment to a laborer
type Payment struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SiteID      string    `json:"site_id" gorm:"type:uuid;not null;index"`
	LaborerID   string    `json:"laborer_id" gorm:"type:uuid;not null;index"`
	Date        time.Time `json:"date" gorm:"type:date;not null"`
	Amount      float64   `json:"amount" gorm:"not null"`
	PaymentMode string    `json:"payment_mode" gorm:"not null"`
	Reference   string    `json:"reference,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Audit
}

// TableName returns the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// Advance is money advanced to a laborer against future wages
type Advance struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SiteID     string    `json:"site_id" gorm:"type:uuid;not null;index"`
	LaborerID  string    `json:"laborer_id" gorm:"type:uuid;not null;index"`
	Date       time.Time `json:"date" gorm:"type:date;not null"`
	Amount     float64   `json:"amount" gorm:"not null"`
	Reason     string    `json:"reason,omitempty"`
	IsDeducted bool      `json:"is_deducted" gorm:"default:false"`
	Audit
}

// TableName returns the table name for Advance
func (Advance) TableName() string {
	return "advances"
}

// MaterialPurchase is a material delivery recorded against a site
type MaterialPurchase struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SiteID    string    `json:"site_id" gorm:"type:uuid;not null;index"`
	Date      time.Time `json:"date" gorm:"type:date;not null"`
	Material  string    `json:"material" gorm:"not null"`
	Unit      string    `json:"unit,omitempty"`
	Quantity  float64   `json:"quantity" gorm:"not null"`
	Rate      float64   `json:"rate" gorm:"not null"`
	TotalCost float64   `json:"total_cost" gorm:"not null"`
	Supplier  string    `json:"supplier,omitempty"`
	InvoiceNo string    `json:"invoice_no,omitempty"`
	Audit
}

// TableName returns the table name for MaterialPurchase
func (MaterialPurchase) TableName() string {
	return "material_purchases"
}

// RowFailures is a custom type for handling GORM serialization
type RowFailures []RowFailure

// Value implements driver.Valuer interface for GORM
func (f RowFailures) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements sql.Scanner interface for GORM
func (f *RowFailures) Scan(value interface{}) error {
	if value == nil {
		*f = RowFailures{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into RowFailures", value)
	}

	return json.Unmarshal(bytes, f)
}

// ImportRun records the outcome of one import request
type ImportRun struct {
	ID        string      `json:"id" gorm:"primaryKey;type:uuid"`
	Entity    string      `json:"entity" gorm:"not null;index"`
	SiteID    string      `json:"site_id,omitempty" gorm:"index"`
	CallerID  string      `json:"caller_id" gorm:"index"`
	Total     int         `json:"total"`
	Inserted  int         `json:"inserted"`
	Updated   int         `json:"updated"`
	Skipped   int         `json:"skipped"`
	Errors    int         `json:"errors"`
	Failures  RowFailures `json:"failures" gorm:"type:jsonb"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName returns the table name for ImportRun
func (ImportRun) TableName() string {
	return "import_runs"
}
