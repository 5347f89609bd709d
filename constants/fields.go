package constants

// Field is a canonical column of the amortization row schema. Every
// field-name variant coming back from the extraction API normalizes to one
// of these before validation.
type Field string

const (
	FieldIndex     Field = "index"
	FieldDueDate   Field = "due_date"
	FieldPayment   Field = "payment"
	FieldPrincipal Field = "principal"
	FieldInterest  Field = "interest"
	FieldInsurance Field = "insurance"
	FieldBalance   Field = "remaining_balance"
)

// MonetaryFields are the canonical fields holding amounts. Order matters:
// it is the column order used by exports.
var MonetaryFields = []Field{
	FieldPayment,
	FieldPrincipal,
	FieldInterest,
	FieldInsurance,
	FieldBalance,
}

// AllFields lists every canonical field in export column order.
var AllFields = []Field{
	FieldIndex,
	FieldDueDate,
	FieldPayment,
	FieldPrincipal,
	FieldInterest,
	FieldInsurance,
	FieldBalance,
}
