// Package extract turns raw DICOM file bytes into naturalized metadata
// records: tag codes mapped to DICOM keywords, values unwrapped into plain Go
// scalars, slices and nested records.
package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reserved record keys added next to the decoded tags.
const (
	KeyFileName = "fileName"
	KeyMeta     = "_meta"
)

// Keywords of the identifying attributes used for grouping and ordering.
const (
	StudyInstanceUID  = "StudyInstanceUID"
	SeriesInstanceUID = "SeriesInstanceUID"
	SOPInstanceUID    = "SOPInstanceUID"
	SeriesNumber      = "SeriesNumber"
	InstanceNumber    = "InstanceNumber"
)

// Record is a naturalized dataset.
type Record map[string]any

// String returns the value under key as text. Multi-valued attributes yield
// their first value; absent keys yield "".
func (r Record) String(key string) string {
	switch v := first(r[key]).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value under key as an integer. Numeric strings (IS and DS
// values) are parsed; absent or non-numeric values yield 0.
func (r Record) Int(key string) int {
	switch v := first(r[key]).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f)
		}
	}
	return 0
}

// Meta returns the naturalized file meta information block, if any.
func (r Record) Meta() Record {
	m, _ := r[KeyMeta].(Record)
	return m
}

func first(v any) any {
	switch s := v.(type) {
	case []any:
		if len(s) == 0 {
			return nil
		}
		return s[0]
	case []string:
		if len(s) == 0 {
			return nil
		}
		return s[0]
	}
	return v
}
