package pipeline

import (
	"reflect"
	"strings"

	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/go-playground/validator/v10"
)

// userRecord and transactionRecord carry the string fields that have format
// constraints; numeric and time fields are checked while decoding.
type userRecord struct {
	UserID    string `json:"userId" validate:"max=64,printascii,excludesall=/?#"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Country   string `json:"country" validate:"max=100"`
	Phone     string `json:"phone" validate:"max=32"`
}

type transactionRecord struct {
	Reference string `json:"reference" validate:"required,max=128,printascii,excludesall=/?#"`
	Currency  string `json:"currency" validate:"omitempty,iso4217"`
	Message   string `json:"message" validate:"max=1024"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldProblem is one failed constraint, named by its JSON field.
type fieldProblem struct {
	Field   string
	Problem string
}

// checkRecord runs the struct validator and translates failures into
// readable problems.
func checkRecord(rec interface{}) []fieldProblem {
	err := validate.Struct(rec)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []fieldProblem{{Problem: err.Error()}}
	}

	problems := make([]fieldProblem, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fieldProblem{Field: fe.Field(), Problem: describe(fe)})
	}
	return problems
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "printascii":
		return "must be printable ASCII"
	case "excludesall":
		return "must not contain any of " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// CheckUser validates a user submitted through the API rather than an archive.
func CheckUser(u *domain.User) error {
	if u.UserID == "" {
		return &domain.ValidationError{Message: "userId is required"}
	}
	return problemsError("invalid user", checkRecord(userRecord{
		UserID:    u.UserID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Country:   u.Country,
		Phone:     u.Phone,
	}))
}

// CheckTransaction validates a transaction submitted through the API.
func CheckTransaction(t *domain.Transaction) error {
	problems := checkRecord(transactionRecord{
		Reference: t.Reference,
		Currency:  t.Currency,
		Message:   t.Message,
	})
	if t.Timestamp.IsZero() {
		problems = append(problems, fieldProblem{Field: "timestamp", Problem: "is required"})
	}
	return problemsError("invalid transaction", problems)
}

// CheckPatch validates a UserPatch or TransactionPatch against its struct tags.
func CheckPatch(patch interface{}) error {
	return problemsError("invalid update", checkRecord(patch))
}

func problemsError(msg string, problems []fieldProblem) error {
	if len(problems) == 0 {
		return nil
	}
	parts := make([]string, len(problems))
	for i, p := range problems {
		parts[i] = strings.TrimSpace(p.Field + " " + p.Problem)
	}
	return &domain.ValidationError{Message: msg + ": " + strings.Join(parts, "; ")}
}
