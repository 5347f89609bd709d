package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmercadier/amortization-extractor/internal/common"
)

// DefaultKeyPaths are the candidate locations probed for the table payload,
// in priority order.
var DefaultKeyPaths = []string{"content", "text", "response"}

// RawResponse is the opaque payload received from the extraction API.
// Created per request, discarded after extraction.
type RawResponse struct {
	Body        []byte
	ContentType string
}

// ExtractedContent is the fragment of a RawResponse believed to hold the
// table data. SourcePath records which candidate key path matched; it is
// empty when the whole payload was taken as plain text.
type ExtractedContent struct {
	SourcePath string
	Text       string
}

// ResponseExtractor locates the payload of interest inside a RawResponse,
// independent of which key held it.
type ResponseExtractor struct {
	keyPaths []string
	logger   *slog.Logger
}

func NewResponseExtractor(keyPaths []string, logger *slog.Logger) *ResponseExtractor {
	if len(keyPaths) == 0 {
		keyPaths = DefaultKeyPaths
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseExtractor{keyPaths: keyPaths, logger: logger}
}

// Extract probes the configured key paths in order and returns the first
// present, non-empty string value. A structured payload with no matching
// path fails with NO_CONTENT_FOUND listing the keys actually observed; a
// payload that is not a JSON object at all is taken wholesale as plain-text
// content. Exactly one ExtractedContent is produced, or the call fails;
// never a silently empty one.
func (x *ResponseExtractor) Extract(raw RawResponse) (ExtractedContent, error) {
	body := bytes.TrimSpace(raw.Body)
	if len(body) == 0 {
		return ExtractedContent{}, common.NewExtractionError(
			common.KindNoContent, common.StageExtract, "empty response body", nil)
	}

	var tree any
	if err := json.Unmarshal(body, &tree); err != nil {
		// Not JSON at all: the payload itself is the content.
		return ExtractedContent{Text: string(body)}, nil
	}

	obj, ok := tree.(map[string]any)
	if !ok {
		// Valid JSON but not an object (e.g. a bare array of rows); hand the
		// whole payload to the normalizer.
		return ExtractedContent{Text: string(body)}, nil
	}

	for _, path := range x.keyPaths {
		val, present := lookupPath(obj, path)
		if !present || val == nil {
			continue
		}
		s, isString := val.(string)
		if !isString {
			return ExtractedContent{}, common.NewExtractionError(
				common.KindUnexpectedShape, common.StageExtract,
				fmt.Sprintf("key path %q holds %T, expected string", path, val), nil)
		}
		if strings.TrimSpace(s) == "" {
			continue
		}
		x.logger.Debug("response.extract.matched", "key_path", path, "bytes", len(s))
		return ExtractedContent{SourcePath: path, Text: s}, nil
	}

	return ExtractedContent{}, common.NewExtractionError(
		common.KindNoContent, common.StageExtract,
		fmt.Sprintf("no candidate key path matched; observed keys: %s",
			strings.Join(observedKeys(obj), ", ")), nil)
}

// lookupPath walks a dot-separated key path through nested JSON objects.
func lookupPath(obj map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = obj
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func observedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
