package parsers

import (
	"strings"

	pkgerrors "transaction-import-service/pkg/errors"
)

// ColumnRole identifies what a CSV column holds.
type ColumnRole string

const (
	RoleDate        ColumnRole = "date"
	RoleAmount      ColumnRole = "amount"
	RoleDescription ColumnRole = "description"
	RoleCategory    ColumnRole = "category"
	RoleTypeHint    ColumnRole = "type"
)

// columnRule associates a role with its keyword set. Rules are evaluated in
// declaration order and keywords within a rule in listed order, so earlier
// keywords take precedence ("category" is preferred over "class").
type columnRule struct {
	role     ColumnRole
	keywords []string
	required bool
}

var columnRules = []columnRule{
	{role: RoleDate, keywords: []string{"date", "day", "time"}, required: true},
	{role: RoleAmount, keywords: []string{"amount", "value", "sum", "total", "price", "cost"}, required: true},
	{role: RoleDescription, keywords: []string{"description", "detail", "merchant", "vendor", "payee", "memo", "note", "reference"}, required: true},
	{role: RoleCategory, keywords: []string{"category", "class", "group", "tag"}},
	{role: RoleTypeHint, keywords: []string{"type"}},
}

// ColumnMapping records which column index fills each role. Optional roles
// hold -1 when the header has no matching column.
type ColumnMapping struct {
	Date        int
	Amount      int
	Description int
	Category    int
	TypeHint    int
}

// HasCategory reports whether a category column was located
func (m *ColumnMapping) HasCategory() bool {
	return m.Category >= 0
}

// HasTypeHint reports whether a debit/credit type column was located
func (m *ColumnMapping) HasTypeHint() bool {
	return m.TypeHint >= 0
}

// MapColumns infers column roles from the header row. For each role the
// keyword set is scanned in order, and within a keyword the columns left to
// right; the first unclaimed column whose lower-cased header contains the
// keyword wins. Missing any required role fails with an unmappable-columns
// error naming every role that could not be located.
func MapColumns(headers []string, filename string) (*ColumnMapping, error) {
	lowered := make([]string, len(headers))
	for i, header := range headers {
		lowered[i] = strings.ToLower(strings.TrimSpace(header))
	}

	mapping := &ColumnMapping{Date: -1, Amount: -1, Description: -1, Category: -1, TypeHint: -1}
	claimed := make(map[int]bool)
	var missing []string

	for _, rule := range columnRules {
		index := findColumn(lowered, rule.keywords, claimed)
		if index == -1 {
			if rule.required {
				missing = append(missing, string(rule.role))
			}
			continue
		}

		claimed[index] = true
		switch rule.role {
		case RoleDate:
			mapping.Date = index
		case RoleAmount:
			mapping.Amount = index
		case RoleDescription:
			mapping.Description = index
		case RoleCategory:
			mapping.Category = index
		case RoleTypeHint:
			mapping.TypeHint = index
		}
	}

	if len(missing) > 0 {
		return nil, pkgerrors.ParseError(
			pkgerrors.CodeUnmappableColumns,
			filename,
			"could not locate column(s): "+strings.Join(missing, ", "),
			nil,
		)
	}

	return mapping, nil
}

func findColumn(lowered []string, keywords []string, claimed map[int]bool) int {
	for _, keyword := range keywords {
		for i, header := range lowered {
			if claimed[i] {
				continue
			}
			if strings.Contains(header, keyword) {
				return i
			}
		}
	}
	return -1
}
