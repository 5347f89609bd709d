package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmercadier/amortization-extractor/constants"
	"github.com/jmercadier/amortization-extractor/internal/common"
)

// Record is one loosely-typed row keyed by canonical field name. Values are
// still raw (string or number) until the builder coerces them.
type Record map[constants.Field]any

// Synonym binds one source field-name variant to a canonical field.
// Declaration order is the tie-break: when two synonyms for the same
// canonical field appear in one record, the first-declared one wins.
type Synonym struct {
	Name  string
	Field constants.Field
}

// DefaultSynonyms covers the French key names produced by the extraction
// prompt plus common English variants.
func DefaultSynonyms() []Synonym {
	return []Synonym{
		{"numero", constants.FieldIndex},
		{"numero echeance", constants.FieldIndex},
		{"index", constants.FieldIndex},
		{"period", constants.FieldIndex},

		{"date d'echeance", constants.FieldDueDate},
		{"date echeance", constants.FieldDueDate},
		{"echeance", constants.FieldDueDate},
		{"due date", constants.FieldDueDate},
		{"date", constants.FieldDueDate},

		{"montant", constants.FieldPayment},
		{"montant echeance", constants.FieldPayment},
		{"mensualite", constants.FieldPayment},
		{"payment", constants.FieldPayment},
		{"amount", constants.FieldPayment},

		{"amortissements", constants.FieldPrincipal},
		{"amortissement", constants.FieldPrincipal},
		{"capital amorti", constants.FieldPrincipal},
		{"principal", constants.FieldPrincipal},

		{"interet", constants.FieldInterest},
		{"interets", constants.FieldInterest},
		{"interest", constants.FieldInterest},

		{"assurances", constants.FieldInsurance},
		{"assurance", constants.FieldInsurance},
		{"insurance", constants.FieldInsurance},

		{"capital restant du", constants.FieldBalance},
		{"capital restant", constants.FieldBalance},
		{"remaining balance", constants.FieldBalance},
		{"balance", constants.FieldBalance},
		{"crd", constants.FieldBalance},
	}
}

// FallbackParser turns non-JSON extracted text into raw row maps. Configured
// optionally; without one, unparseable content is a terminal failure.
type FallbackParser interface {
	Parse(text string) ([]map[string]any, error)
}

// Normalizer maps heterogeneous response shapes into canonical Records.
type Normalizer struct {
	synonyms []Synonym
	folded   []string // folded synonym names, same order as synonyms
	fallback FallbackParser
	schema   *rowSchema
	logger   *slog.Logger
}

func NewNormalizer(synonyms []Synonym, fallback FallbackParser, logger *slog.Logger) (*Normalizer, error) {
	if len(synonyms) == 0 {
		synonyms = DefaultSynonyms()
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileRowSchema()
	if err != nil {
		return nil, common.WrapError(err, "compile row schema")
	}
	folded := make([]string, len(synonyms))
	for i, s := range synonyms {
		folded[i] = foldKey(s.Name)
	}
	return &Normalizer{
		synonyms: synonyms,
		folded:   folded,
		fallback: fallback,
		schema:   schema,
		logger:   logger,
	}, nil
}

// Normalize parses ExtractedContent into canonical Records. Unknown fields
// are dropped with a recorded warning, never merged into another field.
func (n *Normalizer) Normalize(content ExtractedContent) ([]Record, []string, error) {
	rawRecords, err := n.parseRecords(content.Text)
	if err != nil {
		return nil, nil, err
	}

	records := make([]Record, 0, len(rawRecords))
	var warnings []string
	for i, raw := range rawRecords {
		rec, recWarnings := n.mapFields(raw)
		warnings = append(warnings, prefixWarnings(i, recWarnings)...)

		if err := n.schema.validate(rec); err != nil {
			return nil, nil, common.NewExtractionError(
				common.KindUnexpectedShape, common.StageNormalize,
				fmt.Sprintf("record %d has an invalid shape", i+1), err)
		}
		records = append(records, rec)
	}

	if len(warnings) > 0 {
		n.logger.Warn("normalize.fields_dropped", "count", len(warnings), "warnings", warnings)
	}
	return records, warnings, nil
}

// parseRecords decodes the content as JSON, stripping markdown fences and
// surrounding prose first. A configured fallback parser gets one shot at
// content that is not JSON at all.
func (n *Normalizer) parseRecords(text string) ([]map[string]any, error) {
	cleaned := cleanPayload(text)

	var elements []any
	decodeErr := json.Unmarshal([]byte(cleaned), &elements)
	if decodeErr == nil {
		records := make([]map[string]any, 0, len(elements))
		for i, el := range elements {
			m, ok := el.(map[string]any)
			if !ok {
				return nil, common.NewExtractionError(
					common.KindMalformedContent, common.StageNormalize,
					fmt.Sprintf("record %d is %T, expected object", i+1, el), nil)
			}
			records = append(records, m)
		}
		return records, nil
	}

	// A single top-level object is one row.
	var single map[string]any
	if err := json.Unmarshal([]byte(cleaned), &single); err == nil {
		return []map[string]any{single}, nil
	}

	if n.fallback != nil {
		records, err := n.fallback.Parse(text)
		if err == nil {
			return records, nil
		}
		n.logger.Warn("normalize.fallback_failed", "error", err)
	}

	detail := "content is not a JSON array of row objects"
	var syntaxErr *json.SyntaxError
	if errors.As(decodeErr, &syntaxErr) {
		detail = fmt.Sprintf("%s (parse error at offset %d)", detail, syntaxErr.Offset)
	}
	return nil, common.NewExtractionError(
		common.KindMalformedContent, common.StageNormalize, detail, decodeErr)
}

// mapFields folds one raw row onto the canonical schema. Synonyms are probed
// in declaration order; keys matching no synonym come back as warnings.
func (n *Normalizer) mapFields(raw map[string]any) (Record, []string) {
	byFolded := make(map[string]string, len(raw)) // folded -> original key
	for k := range raw {
		byFolded[foldKey(k)] = k
	}

	rec := make(Record, len(raw))
	consumed := make(map[string]bool, len(raw))
	for i, syn := range n.synonyms {
		original, present := byFolded[n.folded[i]]
		if !present {
			continue
		}
		consumed[original] = true
		if _, taken := rec[syn.Field]; taken {
			continue // a higher-priority synonym already supplied this field
		}
		rec[syn.Field] = raw[original]
	}

	var warnings []string
	for k := range raw {
		if !consumed[k] {
			warnings = append(warnings, fmt.Sprintf("unknown field %q dropped", k))
		}
	}
	return rec, warnings
}

func prefixWarnings(recordIdx int, warnings []string) []string {
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = fmt.Sprintf("record %d: %s", recordIdx+1, w)
	}
	return out
}

// cleanPayload strips markdown fences and surrounding prose, keeping the
// JSON array (or object) the model was asked for.
func cleanPayload(text string) string {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			return strings.TrimSpace(s[start : end+1])
		}
	}
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			return strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

// foldKey makes field-name matching insensitive to case, accents, and
// punctuation: "Date d'Écheance" and "date_d_echeance" fold identically.
func foldKey(k string) string {
	s := strings.ToLower(strings.TrimSpace(k))
	s = accentFolder.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	lastSep := true
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastSep = false
			continue
		}
		if !lastSep {
			b.WriteByte('_')
			lastSep = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

var accentFolder = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"à", "a", "â", "a",
	"ô", "o",
	"î", "i", "ï", "i",
	"ù", "u", "û", "u",
	"ç", "c",
)
