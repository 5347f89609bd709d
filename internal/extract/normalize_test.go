package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercadier/amortization-extractor/constants"
	"github.com/jmercadier/amortization-extractor/internal/common"
)

func newTestNormalizer(t *testing.T, fallback FallbackParser) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(nil, fallback, discardLogger())
	require.NoError(t, err)
	return n
}

func TestNormalize_FrenchKeys(t *testing.T) {
	n := newTestNormalizer(t, nil)

	content := ExtractedContent{Text: `[
		{"Date d'écheance": "05/01/2025", "Montant": "850,00", "Amortissements": "600,00",
		 "Interet": "200,00", "Assurances": "50,00", "Capital restant du": "119 400,00"}
	]`}
	records, warnings, err := n.Normalize(content)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "05/01/2025", rec[constants.FieldDueDate])
	assert.Equal(t, "850,00", rec[constants.FieldPayment])
	assert.Equal(t, "600,00", rec[constants.FieldPrincipal])
	assert.Equal(t, "200,00", rec[constants.FieldInterest])
	assert.Equal(t, "50,00", rec[constants.FieldInsurance])
	assert.Equal(t, "119 400,00", rec[constants.FieldBalance])
}

func TestNormalize_SynonymPriority(t *testing.T) {
	n := newTestNormalizer(t, nil)

	// "montant" is declared before "amount"; when both appear, montant wins.
	content := ExtractedContent{Text: `[{"amount": "999", "montant": "100,00"}]`}
	records, _, err := n.Normalize(content)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "100,00", records[0][constants.FieldPayment])
}

func TestNormalize_UnknownFieldsDroppedWithWarning(t *testing.T) {
	n := newTestNormalizer(t, nil)

	content := ExtractedContent{Text: `[{"interest": "5,00", "taux": "3,1%"}]`}
	records, warnings, err := n.Normalize(content)
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, hasUnknown := records[0][constants.Field("taux")]
	assert.False(t, hasUnknown)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `record 1: unknown field "taux" dropped`)
}

func TestNormalize_MarkdownFences(t *testing.T) {
	n := newTestNormalizer(t, nil)

	content := ExtractedContent{Text: "```json\n[{\"interest\": 5.0}]\n```"}
	records, _, err := n.Normalize(content)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 5.0, records[0][constants.FieldInterest])
}

func TestNormalize_SurroundingProse(t *testing.T) {
	n := newTestNormalizer(t, nil)

	content := ExtractedContent{Text: `Here is the table you asked for: [{"interest": 5.0}] Let me know!`}
	records, _, err := n.Normalize(content)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestNormalize_SingleObjectIsOneRow(t *testing.T) {
	n := newTestNormalizer(t, nil)

	records, _, err := n.Normalize(ExtractedContent{Text: `{"interest": "5,00"}`})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestNormalize_NotJSONWithoutFallback(t *testing.T) {
	n := newTestNormalizer(t, nil)

	_, _, err := n.Normalize(ExtractedContent{Text: "not json"})
	require.Error(t, err)
	assert.Equal(t, common.KindMalformedContent, common.KindOf(err))

	var ee *common.ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.Detail, "offset")
}

func TestNormalize_ArrayOfNonObjects(t *testing.T) {
	n := newTestNormalizer(t, nil)

	_, _, err := n.Normalize(ExtractedContent{Text: `[1, 2, 3]`})
	require.Error(t, err)
	assert.Equal(t, common.KindMalformedContent, common.KindOf(err))
}

func TestNormalize_DelimitedFallback(t *testing.T) {
	n := newTestNormalizer(t, &DelimitedParser{})

	content := ExtractedContent{Text: "echeance;montant;interet\n05/01/2025;850,00;200,00"}
	records, _, err := n.Normalize(content)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "05/01/2025", records[0][constants.FieldDueDate])
	assert.Equal(t, "850,00", records[0][constants.FieldPayment])
	assert.Equal(t, "200,00", records[0][constants.FieldInterest])
}

func TestNormalize_NestedValueRejectedBySchema(t *testing.T) {
	n := newTestNormalizer(t, nil)

	_, _, err := n.Normalize(ExtractedContent{Text: `[{"interest": {"value": 5}}]`})
	require.Error(t, err)
	assert.Equal(t, common.KindUnexpectedShape, common.KindOf(err))
}

func TestFoldKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Date d'Écheance", "date_d_echeance"},
		{"date_d_echeance", "date_d_echeance"},
		{"Capital Restant Dû", "capital_restant_du"},
		{"  montant  ", "montant"},
		{"Intérêts", "interets"},
		{"CRD", "crd"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, foldKey(tc.in), "foldKey(%q)", tc.in)
	}
}

func TestDelimitedParser_Errors(t *testing.T) {
	p := &DelimitedParser{}

	_, err := p.Parse("")
	assert.Error(t, err)

	_, err = p.Parse("a;b\n1;2;3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header has 2")
}
