package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-admin/internal/archive"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// userNamespace seeds the UUIDv5 derived for users whose archive has no userId.
var userNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("finance-admin/users"))

// timestampLayouts are the ISO-8601 shapes accepted for transaction timestamps.
// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// NormalizeUser parses userData.json into a User. The returned user has no
// bookkeeping timestamps; persistence fills them.
func NormalizeUser(data []byte) (*domain.User, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, &domain.SchemaError{File: archive.UserDataMember, Err: err}
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, &domain.SchemaError{File: archive.UserDataMember, Err: fmt.Errorf("expected a JSON object, got %s", jsonKind(v))}
	}

	var problems []fieldProblem
	str := func(keys ...string) string {
		s, err := aliasedString(obj, keys...)
		if err != nil {
			problems = append(problems, fieldProblem{Field: keys[0], Problem: err.Error()})
		}
		return s
	}

	rec := userRecord{
		UserID:    str("userId", "id"),
		FirstName: str("firstName"),
		LastName:  str("lastName"),
		Country:   str("country"),
		Phone:     str("phone"),
	}
	name := str("name")
	birthdayStr := str("birthday")

	if rec.FirstName == "" && rec.LastName == "" && name != "" {
		rec.FirstName, rec.LastName = splitName(name)
	}
	if rec.UserID == "" && rec.FirstName == "" && rec.LastName == "" {
		problems = append(problems, fieldProblem{Field: "userId", Problem: "userId or a name is required"})
	}
	problems = append(problems, checkRecord(rec)...)

	user := &domain.User{
		UserID:    rec.UserID,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Country:   rec.Country,
		Phone:     rec.Phone,
	}

	if birthdayStr != "" {
		d, err := parseDate(birthdayStr)
		if err != nil {
			problems = append(problems, fieldProblem{Field: "birthday", Problem: err.Error()})
		} else {
			user.Birthday = &d
		}
	}

	if len(problems) > 0 {
		parts := make([]string, len(problems))
		for i, p := range problems {
			parts[i] = p.Field + " " + p.Problem
		}
		return nil, &domain.ValidationError{Message: "invalid " + archive.UserDataMember + ": " + strings.Join(parts, "; ")}
	}

	if user.UserID == "" {
		user.UserID = DeriveUserID(user)
	}

	return user, nil
}

// DeriveUserID returns a stable id for a user record that arrived without one,
// so re-importing the same archive lands on the same user.
func DeriveUserID(u *domain.User) string {
	key := strings.ToLower(strings.TrimSpace(u.FirstName)) + "\x00" + strings.ToLower(strings.TrimSpace(u.LastName))
	if u.Birthday != nil {
		key += "\x00" + u.Birthday.String()
	}
	return uuid.NewSHA1(userNamespace, []byte(key)).String()
}

// NormalizeTransactions parses transactions.json and links every entry to
// userID. All invalid entries are reported together; a single bad entry
// rejects the batch.
func NormalizeTransactions(data []byte, userID string) ([]*domain.Transaction, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, &domain.SchemaError{File: archive.TransactionsMember, Err: err}
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, &domain.SchemaError{File: archive.TransactionsMember, Err: fmt.Errorf("expected a JSON array, got %s", jsonKind(v))}
	}

	var issues []domain.Issue
	seen := make(map[string]int, len(items))
	result := make([]*domain.Transaction, 0, len(items))

	for i, item := range items {
		tx, entryIssues := normalizeTransaction(i, item, userID)
		if tx != nil && tx.Reference != "" {
			if first, dup := seen[tx.Reference]; dup {
				entryIssues = append(entryIssues, domain.Issue{
					Index:     i,
					Reference: tx.Reference,
					Field:     "reference",
					Problem:   fmt.Sprintf("duplicate reference (first seen at entry %d)", first),
				})
			} else {
				seen[tx.Reference] = i
			}
		}
		if len(entryIssues) > 0 {
			issues = append(issues, entryIssues...)
			continue
		}
		result = append(result, tx)
	}

	if len(issues) > 0 {
		return nil, &domain.ValidationError{Message: "invalid " + archive.TransactionsMember, Issues: issues}
	}

	return result, nil
}

func normalizeTransaction(index int, item interface{}, userID string) (*domain.Transaction, []domain.Issue) {
	obj, ok := item.(map[string]interface{})
	if !ok {
		return nil, []domain.Issue{{Index: index, Problem: "expected an object, got " + jsonKind(item)}}
	}

	var issues []domain.Issue
	tx := &domain.Transaction{UserID: userID}
	add := func(field, problem string) {
		issues = append(issues, domain.Issue{Index: index, Reference: tx.Reference, Field: field, Problem: problem})
	}

	ref, err := aliasedString(obj, "reference", "transactionId")
	if err != nil {
		add("reference", err.Error())
	}
	tx.Reference = ref

	amount, err := amountField(obj, "amount")
	if err != nil {
		add("amount", err.Error())
	}
	tx.Amount = amount

	currency, err := aliasedString(obj, "currency")
	if err != nil {
		add("currency", err.Error())
	}
	tx.Currency = strings.ToUpper(currency)

	message, err := aliasedString(obj, "message", "description")
	if err != nil {
		add("message", err.Error())
	}
	tx.Message = message

	tsStr, err := aliasedString(obj, "timestamp", "date")
	switch {
	case err != nil:
		add("timestamp", err.Error())
	case tsStr == "":
		add("timestamp", "is required")
	default:
		ts, err := parseTimestamp(tsStr)
		if err != nil {
			add("timestamp", err.Error())
		}
		tx.Timestamp = ts
	}

	owner, err := aliasedString(obj, "userId")
	if err != nil {
		add("userId", err.Error())
	} else if owner != "" && owner != userID {
		add("userId", fmt.Sprintf("belongs to %q, archive user is %q", owner, userID))
	}

	for _, p := range checkRecord(transactionRecord{Reference: tx.Reference, Currency: tx.Currency, Message: tx.Message}) {
		add(p.Field, p.Problem)
	}

	return tx, issues
}

// decodeJSON decodes a single JSON value, keeping numbers as json.Number.
func decodeJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON: unexpected data after top-level value")
	}
	return v, nil
}

// aliasedString reads the first present key among keys. Later keys are legacy
// aliases; when several are present they must agree. Numbers are accepted and
// rendered as written; null reads as absent.
func aliasedString(m map[string]interface{}, keys ...string) (string, error) {
	var (
		value string
		from  string
	)
	for _, key := range keys {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		var s string
		switch val := raw.(type) {
		case string:
			s = strings.TrimSpace(val)
		case json.Number:
			s = val.String()
		default:
			return "", fmt.Errorf("has type %s, want string", jsonKind(raw))
		}
		if from != "" && s != value {
			return "", fmt.Errorf("%q and %q disagree", from, key)
		}
		if from == "" {
			value, from = s, key
		}
	}
	return value, nil
}

// amountField coerces a numeric or numeric-string amount into a decimal.
func amountField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return decimal.Zero, errors.New("is required")
	}

	var s string
	switch val := raw.(type) {
	case json.Number:
		s = val.String()
	case string:
		s = strings.TrimSpace(val)
	default:
		return decimal.Zero, fmt.Errorf("has type %s, want number or numeric string", jsonKind(raw))
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a finite number", s)
	}
	return d, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.NormalizeTimestamp(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 timestamp", s)
}

func parseDate(s string) (civil.Date, error) {
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return civil.DateOf(t.UTC()), nil
	}
	return civil.Date{}, fmt.Errorf("%q is not a YYYY-MM-DD date", s)
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
