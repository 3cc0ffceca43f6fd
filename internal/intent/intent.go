// Package intent defines the structured interpretation of an utterance:
// an intent type (log/query/act), a category scoped to that type, and a
// free-form entity map extracted by the classifier.
package intent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Type string

const (
	TypeLog   Type = "log"
	TypeQuery Type = "query"
	TypeAct   Type = "act"
)

type Intent struct {
	Type       Type           `json:"intentType"`
	Category   string         `json:"category"`
	Title      string         `json:"title"`
	Detail     string         `json:"detail"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
}

// ValidationError reports an intent outside the recognized type/category
// sets. It is never auto-corrected; the caller surfaces it.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

var logCategories = map[string]struct{}{
	"expense": {}, "income": {}, "contact": {}, "event": {},
}

var queryCategories = map[string]struct{}{
	"calendar": {}, "finance": {}, "contact": {}, "task": {}, "general": {},
}

var actCategories = map[string]struct{}{
	"email": {}, "event": {}, "todo": {}, "workspace": {},
	"contact": {}, "transaction": {}, "draft": {},
}

// Normalize lowercases the type and category and fills a missing entity
// map. The classifier returns either "type" or "intentType"; UnmarshalJSON
// below accepts both.
func (in *Intent) Normalize() {
	in.Type = Type(strings.ToLower(string(in.Type)))
	in.Category = strings.ToLower(in.Category)
	if in.Entities == nil {
		in.Entities = map[string]any{}
	}
}

func (in Intent) Validate() error {
	switch in.Type {
	case TypeLog:
		if _, ok := logCategories[in.Category]; !ok {
			return &ValidationError{Msg: fmt.Sprintf("unknown log category: %q", in.Category)}
		}
	case TypeQuery:
		if _, ok := queryCategories[in.Category]; !ok {
			return &ValidationError{Msg: fmt.Sprintf("unknown query category: %q", in.Category)}
		}
	case TypeAct:
		if _, ok := actCategories[in.Category]; !ok {
			return &ValidationError{Msg: fmt.Sprintf("unknown act category: %q", in.Category)}
		}
	default:
		return &ValidationError{Msg: fmt.Sprintf("unknown intent type: %q", in.Type)}
	}
	return nil
}

func (in *Intent) UnmarshalJSON(data []byte) error {
	type alias Intent
	aux := struct {
		*alias
		AltType Type `json:"type"`
	}{alias: (*alias)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if in.Type == "" {
		in.Type = aux.AltType
	}
	in.Normalize()
	return nil
}

// TransactionBucket maps a classified category plus entities onto the
// ledger category. Income stays Income; everything else is an expense
// bucket chosen by the businessExpense entity flag.
func TransactionBucket(category string, entities map[string]any) string {
	if category == "income" {
		return "Income"
	}
	if v, ok := entities["category"].(string); ok {
		switch v {
		case "Income":
			return "Income"
		case "Business Expenses":
			return "Business Expenses"
		}
	}
	if b, ok := entities["businessExpense"].(bool); ok && b {
		return "Business Expenses"
	}
	return "Personal Expenses"
}

// NormalizeAmount coerces the sign of a ledger amount: negative for any
// non-Income bucket, positive for Income, regardless of the sign the
// classifier or a user edit supplied.
func NormalizeAmount(bucket string, amount float64) float64 {
	if bucket == "Income" {
		if amount < 0 {
			return -amount
		}
		return amount
	}
	if amount > 0 {
		return -amount
	}
	return amount
}

// EntityString pulls a string entity, tolerating absent keys and non-string
// values the classifier occasionally emits.
func EntityString(entities map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := entities[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

// EntityAmount pulls a numeric entity; string amounts like "12" or "$12"
// are parsed, anything else is zero.
func EntityAmount(entities map[string]any, key string) float64 {
	v, ok := entities[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		trimmed := strings.TrimPrefix(strings.TrimSpace(t), "$")
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// QueryWorkflow maps a query category to its workflow path. Unmapped
// categories fall through to the generic workflow; category validity is
// checked separately by Validate.
func QueryWorkflow(category string) string {
	switch category {
	case "calendar", "event":
		return "calendar-query"
	case "finance", "expense", "income":
		return "finance-query"
	case "contact":
		return "contacts-query"
	case "task":
		return "tasks-query"
	default:
		return "generic-query"
	}
}

// ActWorkflow maps an act category to its external workflow path. The
// second return is false for categories handled by direct writes.
func ActWorkflow(category string) (string, bool) {
	switch category {
	case "email":
		return "send-email", true
	case "event":
		return "create-event", true
	default:
		return "", false
	}
}

// WorkspaceType canonicalizes a classified workspace type against the
// allowed set; anything else becomes Personal.
func WorkspaceType(s string) string {
	for _, t := range []string{"Business", "Personal", "Admin", "Creative"} {
		if strings.EqualFold(s, t) {
			return t
		}
	}
	return "Personal"
}

var workspaceColors = map[string]string{
	"Business": "#D4AF37",
	"Personal": "#6B8E4E",
	"Admin":    "#584738",
	"Creative": "#5B7B9A",
}

func WorkspaceColor(wsType string) string {
	if c, ok := workspaceColors[wsType]; ok {
		return c
	}
	return "#D4AF37"
}

// EventColor picks the calendar color for an event category: blue for
// work, green for everything else.
func EventColor(category string) string {
	if strings.EqualFold(category, "work") {
		return "#4285F4"
	}
	return "#34A853"
}
