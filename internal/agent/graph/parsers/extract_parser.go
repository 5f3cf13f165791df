// Package parsers turns the extraction model's delimited-tuple output into
// structured extraction results. The format is deliberately not JSON: small
// models emit it reliably and a malformed record only loses that record.
package parsers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tilemart/salescore/internal/agent/model"
	errx "github.com/tilemart/salescore/internal/core/error"
	"github.com/tilemart/salescore/internal/sales/requirement"
	logx "github.com/tilemart/salescore/pkg/logger"
)

const (
	recDelim = "##"
	tupDelim = "<||>"
	endDelim = "<|COMPLETE|>"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024 // 128KB
	maxRecords    = 500        // maximum number of records to process
	maxTupleLen   = 8 * 1024   // 8KB per tuple
	maxMetaLen    = 4 * 1024   // 4KB metadata JSON
	maxErrSnippet = 200        // limit error snippet size
)

type rawTuple struct {
	Type  string
	Parts []string
}

func parseRawTuple(s string) (*rawTuple, error) {
	if s == "" {
		return nil, fmt.Errorf("empty tuple")
	}
	// enforce a sane upper bound per record
	if len(s) > maxTupleLen {
		return nil, fmt.Errorf("tuple too large")
	}

	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("invalid tuple parens")
	}
	// remove the outermost parens only
	inner := s[1 : len(s)-1]
	// limit splitting to at most 5 segments so metadata can contain delimiters
	parts := strings.SplitN(inner, tupDelim, 5)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid tuple parts")
	}
	return &rawTuple{Type: strings.TrimSpace(parts[0]), Parts: parts}, nil
}

func mustValidUTF8(s string, name string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s invalid utf8", name)
	}
	return nil
}

func parseFloat(s string, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse: %w", name, err)
	}
	return v, nil
}

func parseFloatInRange(s, name string, min, max float64) (float64, error) {
	v, err := parseFloat(s, name)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s invalid number", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s out of range", name)
	}
	return v, nil
}

func parseMeta(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]any{}, nil
	}
	if len(s) > maxMetaLen {
		return nil, fmt.Errorf("metadata too large")
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("metadata not json object")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseExtraction parses the extraction model's delimited output. Record
// shapes:
//
//	(fact<||>key<||>value<||>confidence<||>{"revision":true})##
//	(project_type<||>bathroom_floor<||>confidence)##
//	(intent<||>purchase_intent<||>confidence)##
//	(topic_change<||>1<||>confidence)##
//	(sentiment<||>positive<||>confidence)##
//	<|COMPLETE|>
//
// Malformed records are skipped and noted in ParsingMetadata; the parser
// never fails the whole turn for one bad tuple.
func ParseExtraction(content string) (resp *model.Extraction, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "extract_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("extraction parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			resp = nil
		}
	}()

	// content length guard
	truncated := false
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "extract_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
		truncated = true
	}
	// honor completion delimiter if present
	if idx := strings.Index(content, endDelim); idx >= 0 {
		content = content[:idx]
	}

	resp = &model.Extraction{
		Facts:           []model.Fact{},
		ParsingMetadata: map[string]any{},
		Timestamp:       time.Now().UTC(),
	}

	addErr := func(msg string) {
		if resp.ParsingMetadata == nil {
			resp.ParsingMetadata = make(map[string]any)
		}
		v, _ := resp.ParsingMetadata["parsing_errors"].([]string)
		v = append(v, msg)
		resp.ParsingMetadata["parsing_errors"] = v
	}

	if truncated {
		resp.ParsingMetadata["truncated"] = true
	}

	bestProjectConf := -1.0
	records := strings.Split(content, recDelim)
	processed := 0
	for _, rec := range records {
		if processed >= maxRecords {
			resp.ParsingMetadata["records_capped"] = true
			logx.Warn().
				Str("component", "extract_parser").
				Int("max_records", maxRecords).
				Msg("record processing capped")
			break
		}
		rec = strings.TrimSpace(rec)
		if rec == "" || rec == endDelim {
			continue
		}
		processed++

		rt, rerr := parseRawTuple(rec)
		if rerr != nil {
			addErr(fmt.Sprintf("bad_record: %s", safeSnippet(rec)))
			continue
		}

		switch rt.Type {
		case "fact":
			if len(rt.Parts) < 4 {
				addErr("fact: insufficient parts")
				continue
			}
			key := strings.ToLower(strings.TrimSpace(rt.Parts[1]))
			if err := mustValidUTF8(key, "fact.key"); err != nil || key == "" {
				addErr("fact: invalid key utf8")
				continue
			}
			if !validFactKey(key) {
				addErr(fmt.Sprintf("fact: unknown key %s", safeSnippet(key)))
				continue
			}
			value := strings.TrimSpace(rt.Parts[2])
			if err := mustValidUTF8(value, "fact.value"); err != nil || value == "" {
				addErr("fact: invalid value utf8")
				continue
			}
			conf, err := parseFloatInRange(rt.Parts[3], "fact.confidence", 0, 1)
			if err != nil {
				addErr("fact: invalid confidence")
				continue
			}
			revision := false
			if len(rt.Parts) >= 5 {
				if m, err := parseMeta(rt.Parts[4]); err == nil {
					if v, ok := m["revision"].(bool); ok {
						revision = v
					}
				} else {
					addErr("fact: invalid metadata json")
				}
			}
			resp.Facts = append(resp.Facts, model.Fact{
				Key:        requirement.Key(key),
				Value:      value,
				Confidence: conf,
				Revision:   revision,
			})

		case "project_type":
			if len(rt.Parts) < 3 {
				addErr("project_type: insufficient parts")
				continue
			}
			name := strings.ToLower(strings.TrimSpace(rt.Parts[1]))
			if err := mustValidUTF8(name, "project_type.name"); err != nil || name == "" {
				addErr("project_type: invalid name utf8")
				continue
			}
			conf, err := parseFloatInRange(rt.Parts[2], "project_type.confidence", 0, 1)
			if err != nil {
				addErr("project_type: invalid confidence")
				continue
			}
			if conf > bestProjectConf {
				bestProjectConf = conf
				resp.ProjectType = name
			}

		case "intent":
			if len(rt.Parts) < 3 {
				addErr("intent: insufficient parts")
				continue
			}
			name := strings.TrimSpace(rt.Parts[1])
			if err := mustValidUTF8(name, "intent.name"); err != nil || name == "" {
				addErr("intent: invalid name utf8")
				continue
			}
			conf, err := parseFloatInRange(rt.Parts[2], "intent.confidence", 0, 1)
			if err != nil {
				addErr("intent: invalid confidence")
				continue
			}
			if conf > resp.IntentConf {
				resp.Intent = name
				resp.IntentConf = conf
			}

		case "topic_change":
			if len(rt.Parts) < 3 {
				addErr("topic_change: insufficient parts")
				continue
			}
			flag := strings.TrimSpace(rt.Parts[1]) == "1"
			conf, err := parseFloatInRange(rt.Parts[2], "topic_change.confidence", 0, 1)
			if err != nil {
				addErr("topic_change: invalid confidence")
				continue
			}
			// a topic change below even odds is a guess, not a signal
			if flag && conf >= 0.5 {
				resp.TopicChange = true
			}

		case "sentiment":
			if len(rt.Parts) < 3 {
				addErr("sentiment: insufficient parts")
				continue
			}
			label := strings.TrimSpace(rt.Parts[1])
			if err := mustValidUTF8(label, "sentiment.label"); err != nil || label == "" {
				addErr("sentiment: invalid label utf8")
				continue
			}
			conf, err := parseFloatInRange(rt.Parts[2], "sentiment.confidence", 0, 1)
			if err != nil {
				addErr("sentiment: invalid confidence")
				continue
			}
			resp.Sentiment = model.Sentiment{Label: label, Confidence: conf}

		default:
			// ignore unknown type but record a hint
			addErr("unknown tuple type")
		}
	}

	return resp, nil
}

// --- helpers ---

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}

func validFactKey(key string) bool {
	switch requirement.Key(key) {
	case requirement.KeyIdentity, requirement.KeyDimensions, requirement.KeyBudget,
		requirement.KeyInstallationMethod, requirement.KeyTimeline, requirement.KeyProductSelected:
		return true
	}
	return false
}
