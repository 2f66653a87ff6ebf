package store

import "fmt"

// ColumnKind is how a column is stored and decoded
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindBool
	KindInt
	KindJSON // arbitrary JSON, stored as text
	KindTime // RFC3339 timestamp, stored as text
)

// Column describes one column of a table
type Column struct {
	Name string
	Kind ColumnKind
}

// Table describes a table exposed through the store
type Table struct {
	Name    string
	Columns []Column
}

// Has reports whether the table has the named column
func (t Table) Has(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Column returns the named column
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in schema order
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// CheckColumns returns ErrUnknownColumn for the first column not in the table
func (t Table) CheckColumns(names ...string) error {
	for _, n := range names {
		if !t.Has(n) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, n)
		}
	}
	return nil
}

var schema = map[string]Table{
	TableCards: {Name: TableCards, Columns: []Column{
		{"id", KindText},
		{"board_id", KindText},
		{"title", KindText},
		{"description", KindText},
		{"date", KindText},
		{"is_recurring_template", KindBool},
		{"recurrence_rule", KindText},
		{"template_id", KindText},
		{"status", KindText},
		{"is_active", KindBool},
		{"completed_at", KindTime},
		{"priority", KindText},
		{"due_date", KindText},
		{"tags", KindJSON},
		{"listable_id", KindText},
		{"item_type", KindText},
		{"assigned_to", KindText},
		{"assigned_to_both", KindBool},
		{"scheduled_time", KindText},
		{"chain_id", KindText},
		{"step_order", KindInt},
		{"created_at", KindTime},
		{"created_by", KindText},
	}},
	TableListables: {Name: TableListables, Columns: []Column{
		{"id", KindText},
		{"board_id", KindText},
		{"name", KindText},
		{"color", KindText},
		{"created_at", KindTime},
	}},
	TableChains: {Name: TableChains, Columns: []Column{
		{"id", KindText},
		{"group_id", KindText},
		{"name", KindText},
		{"description", KindText},
		{"created_at", KindTime},
	}},
	TableChainSteps: {Name: TableChainSteps, Columns: []Column{
		{"id", KindText},
		{"chain_id", KindText},
		{"step_order", KindInt},
		{"title", KindText},
		{"default_delay_hours", KindInt},
		{"pending_since", KindTime},
		{"created_at", KindTime},
	}},
}

// Lookup returns the schema of a table
func Lookup(name string) (Table, error) {
	t, ok := schema[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

// TableNames lists every table in the schema
func TableNames() []string {
	return []string{TableCards, TableListables, TableChains, TableChainSteps}
}
