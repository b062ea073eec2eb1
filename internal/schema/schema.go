// Package schema holds the static column registries for the destination
// tables. The warehouse tables are created from these definitions and
// every dataset is reordered to them before upload, so the column lists
// here are the single source of truth for table layout.
package schema

import (
	"fmt"

	"kalshidune/internal/etl"
)

// Destination column types.
const (
	TypeVarchar = "varchar"
	TypeInteger = "integer"
	TypeDouble  = "double"
	TypeBoolean = "boolean"
)

// Column is one column of a destination table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable,omitempty"`
}

// Table is a destination table definition: name, description and the
// exact ordered column list.
type Table struct {
	Name        string
	Description string
	Columns     []Column
}

// ColumnNames returns the ordered column names.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ETLSchema converts the table definition into the pipeline's schema type.
func (t Table) ETLSchema() *etl.Schema {
	fields := make([]etl.Field, len(t.Columns))
	for i, c := range t.Columns {
		fields[i] = etl.Field{Name: c.Name, Type: fieldType(c.Type)}
	}
	return &etl.Schema{Fields: fields}
}

func fieldType(columnType string) string {
	switch columnType {
	case TypeInteger, TypeDouble:
		return "number"
	case TypeBoolean:
		return "boolean"
	default:
		return "text"
	}
}

// Aliases maps collector-era column names onto their canonical
// destination names. The collector stamps an uppercase DATE column;
// the destination schema declares it lowercase.
func Aliases() map[string]string {
	return map[string]string{"DATE": "date"}
}

// ForResource returns the table definition for a resource type.
func ForResource(resource string) (Table, error) {
	switch resource {
	case "events":
		return Events(), nil
	case "markets":
		return Markets(), nil
	default:
		return Table{}, fmt.Errorf("no schema for resource %q", resource)
	}
}

// Events returns the events table definition (13 columns).
func Events() Table {
	return Table{
		Name:        "kalshi_events",
		Description: "Kalshi prediction market events data. Updated daily with new events and status changes. Data sourced from Kalshi API.",
		Columns: []Column{
			{Name: "event_ticker", Type: TypeVarchar},
			{Name: "series_ticker", Type: TypeVarchar, Nullable: true},
			{Name: "sub_title", Type: TypeVarchar, Nullable: true},
			{Name: "title", Type: TypeVarchar},
			{Name: "collateral_return_type", Type: TypeVarchar, Nullable: true},
			{Name: "mutually_exclusive", Type: TypeBoolean, Nullable: true},
			{Name: "category", Type: TypeVarchar, Nullable: true},
			{Name: "price_level_structure", Type: TypeVarchar, Nullable: true},
			{Name: "available_on_brokers", Type: TypeBoolean, Nullable: true},
			{Name: "collection_date", Type: TypeVarchar},
			{Name: "date", Type: TypeVarchar},
			{Name: "strike_date", Type: TypeVarchar, Nullable: true},
			{Name: "strike_period", Type: TypeVarchar, Nullable: true},
		},
	}
}

// Markets returns the markets table definition (57 columns). Price and
// strike columns are doubles: the API reports cent integers alongside
// dollar floats, and the dollar forms survive sanitization unchanged.
func Markets() Table {
	return Table{
		Name:        "kalshi_markets",
		Description: "Kalshi prediction market individual markets data. Updated daily with current pricing, volume, and liquidity metrics. Data sourced from Kalshi API.",
		Columns: []Column{
			{Name: "ticker", Type: TypeVarchar},
			{Name: "event_ticker", Type: TypeVarchar},
			{Name: "market_type", Type: TypeVarchar, Nullable: true},
			{Name: "title", Type: TypeVarchar},
			{Name: "subtitle", Type: TypeVarchar, Nullable: true},
			{Name: "yes_sub_title", Type: TypeVarchar, Nullable: true},
			{Name: "no_sub_title", Type: TypeVarchar, Nullable: true},
			{Name: "open_time", Type: TypeVarchar, Nullable: true},
			{Name: "close_time", Type: TypeVarchar, Nullable: true},
			{Name: "expected_expiration_time", Type: TypeVarchar, Nullable: true},
			{Name: "expiration_time", Type: TypeVarchar, Nullable: true},
			{Name: "latest_expiration_time", Type: TypeVarchar, Nullable: true},
			{Name: "settlement_timer_seconds", Type: TypeInteger, Nullable: true},
			{Name: "status", Type: TypeVarchar},
			{Name: "response_price_units", Type: TypeVarchar, Nullable: true},
			{Name: "notional_value", Type: TypeDouble, Nullable: true},
			{Name: "notional_value_dollars", Type: TypeDouble, Nullable: true},
			{Name: "yes_bid", Type: TypeDouble, Nullable: true},
			{Name: "yes_bid_dollars", Type: TypeDouble, Nullable: true},
			{Name: "yes_ask", Type: TypeDouble, Nullable: true},
			{Name: "yes_ask_dollars", Type: TypeDouble, Nullable: true},
			{Name: "no_bid", Type: TypeDouble, Nullable: true},
			{Name: "no_bid_dollars", Type: TypeDouble, Nullable: true},
			{Name: "no_ask", Type: TypeDouble, Nullable: true},
			{Name: "no_ask_dollars", Type: TypeDouble, Nullable: true},
			{Name: "last_price", Type: TypeDouble, Nullable: true},
			{Name: "last_price_dollars", Type: TypeDouble, Nullable: true},
			{Name: "previous_yes_bid", Type: TypeDouble, Nullable: true},
			{Name: "previous_yes_bid_dollars", Type: TypeDouble, Nullable: true},
			{Name: "previous_yes_ask", Type: TypeDouble, Nullable: true},
			{Name: "previous_yes_ask_dollars", Type: TypeDouble, Nullable: true},
			{Name: "previous_price", Type: TypeDouble, Nullable: true},
			{Name: "previous_price_dollars", Type: TypeDouble, Nullable: true},
			{Name: "volume", Type: TypeInteger, Nullable: true},
			{Name: "volume_24h", Type: TypeInteger, Nullable: true},
			{Name: "liquidity", Type: TypeDouble, Nullable: true},
			{Name: "liquidity_dollars", Type: TypeDouble, Nullable: true},
			{Name: "open_interest", Type: TypeInteger, Nullable: true},
			{Name: "result", Type: TypeVarchar, Nullable: true},
			{Name: "can_close_early", Type: TypeBoolean, Nullable: true},
			{Name: "expiration_value", Type: TypeVarchar, Nullable: true},
			{Name: "category", Type: TypeVarchar, Nullable: true},
			{Name: "risk_limit_cents", Type: TypeInteger, Nullable: true},
			{Name: "strike_type", Type: TypeVarchar, Nullable: true},
			{Name: "custom_strike", Type: TypeVarchar, Nullable: true},
			{Name: "rules_primary", Type: TypeVarchar, Nullable: true},
			{Name: "rules_secondary", Type: TypeVarchar, Nullable: true},
			{Name: "tick_size", Type: TypeDouble, Nullable: true},
			{Name: "mve_collection_ticker", Type: TypeVarchar, Nullable: true},
			{Name: "mve_selected_legs", Type: TypeVarchar, Nullable: true},
			{Name: "collection_date", Type: TypeVarchar},
			{Name: "date", Type: TypeVarchar},
			{Name: "floor_strike", Type: TypeDouble, Nullable: true},
			{Name: "early_close_condition", Type: TypeVarchar, Nullable: true},
			{Name: "cap_strike", Type: TypeDouble, Nullable: true},
			{Name: "primary_participant_key", Type: TypeVarchar, Nullable: true},
			{Name: "fee_waiver_expiration_time", Type: TypeVarchar, Nullable: true},
		},
	}
}
