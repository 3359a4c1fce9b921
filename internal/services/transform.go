package services

import (
	"time"

	"github.com/shopspring/decimal"

	"site-mass-upload/internal/models"
)

// Materialize turns a validated row into the record sent to the import
// endpoint. All entity-specific business rules live here.
func Materialize(row models.ParsedRow, entity string, caller models.CallerContext, now time.Time) models.Record {
	record := models.Record{}
	for field, value := range row.Values {
		if present(value) {
			record[field] = value
		}
	}

	switch entity {
	case "laborers":
		setDefault(record, "is_active", true)
	case "attendance":
		setDefault(record, "status", "Present")
	case "expenses":
		setDefault(record, "category", "General")
		if !present(record["amount"]) {
			if amount, ok := product(record, "rate", "quantity", "days"); ok {
				record["amount"] = amount
			}
		}
	case "payments":
		setDefault(record, "payment_mode", "Cash")
	case "advances":
		setDefault(record, "is_deducted", false)
	case "material_purchases":
		if !present(record["total_cost"]) {
			if total, ok := product(record, "rate", "quantity"); ok {
				record["total_cost"] = total
			}
		}
	}

	if needsSite(entity) && caller.SiteID != "" {
		record["site_id"] = caller.SiteID
	}
	if caller.CallerID != "" {
		record["created_by"] = caller.CallerID
	}
	if caller.CallerName != "" {
		record["created_by_name"] = caller.CallerName
	}
	record["created_at"] = now.UTC().Format(time.RFC3339)

	return record
}

func needsSite(entity string) bool {
	switch entity {
	case "attendance", "expenses", "payments", "advances", "material_purchases":
		return true
	}
	return false
}

func present(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	}
	return true
}

func setDefault(record models.Record, field string, value interface{}) {
	if !present(record[field]) {
		record[field] = value
	}
}

// product multiplies the named numeric fields, rounding to paise. The first two
// fields are mandatory; later ones act as multipliers that default to 1.
func product(record models.Record, fields ...string) (float64, bool) {
	total := decimal.NewFromInt(1)
	for i, name := range fields {
		v, ok := record[name].(float64)
		if !ok {
			if i < 2 {
				return 0, false
			}
			continue
		}
		total = total.Mul(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64(), true
}
