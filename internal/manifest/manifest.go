// Package manifest renders a grouped Study hierarchy as the viewer preset
// JSON document. It performs no I/O.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"dicompreset/internal/hierarchy"
)

// Manifest is the top-level JSON array, one entry per study.
type Manifest []Entry

// Entry describes one study and its series.
type Entry struct {
	Study  StudyDescriptor    `json:"study"`
	Series []SeriesDescriptor `json:"series"`
}

// StudyDescriptor identifies a study. Name repeats the UID. Empty identifiers
// (files that failed to decode) are left out of the JSON.
type StudyDescriptor struct {
	StudyInstanceUID string `json:"study_instance_uid,omitempty"`
	Name             string `json:"name,omitempty"`
}

// SeriesDescriptor lists the items of one series in instance order.
type SeriesDescriptor struct {
	SeriesInstanceUID string `json:"series_instance_uid,omitempty"`
	Items             []Item `json:"items"`
}

// Item is one instance. Its JSON shape depends on Format.
type Item struct {
	Format         Format
	SOPInstanceUID string
	FileName       string
}

type itemV1 struct {
	SOPInstanceUID string `json:"sop_instance_uid,omitempty"`
	FileName       string `json:"file_name"`
}

// MarshalJSON implements json.Marshaler.
func (i Item) MarshalJSON() ([]byte, error) {
	switch i.Format {
	case FormatV1:
		return marshal(itemV1{SOPInstanceUID: i.SOPInstanceUID, FileName: i.FileName})
	case FormatV2:
		return marshal(i.FileName)
	default:
		return nil, fmt.Errorf("manifest item: unknown format %d", int(i.Format))
	}
}

// Build sorts a copy of studies and renders it. Instance paths are
// dataPath + "/" + file name. The input is left untouched, so repeated calls
// yield identical manifests.
func Build(studies []hierarchy.Study, dataPath string, format Format) (Manifest, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("build manifest: unknown format %d", int(format))
	}
	sorted := hierarchy.Clone(studies)
	hierarchy.Sort(sorted)

	m := make(Manifest, 0, len(sorted))
	for _, st := range sorted {
		entry := Entry{
			Study: StudyDescriptor{
				StudyInstanceUID: st.StudyInstanceUID,
				Name:             st.StudyInstanceUID,
			},
			Series: make([]SeriesDescriptor, 0, len(st.Series)),
		}
		for _, se := range st.Series {
			desc := SeriesDescriptor{
				SeriesInstanceUID: se.SeriesInstanceUID,
				Items:             make([]Item, 0, len(se.Instances)),
			}
			for _, inst := range se.Instances {
				desc.Items = append(desc.Items, Item{
					Format:         format,
					SOPInstanceUID: inst.SOPInstanceUID,
					FileName:       dataPath + "/" + inst.FileName,
				})
			}
			entry.Series = append(entry.Series, desc)
		}
		m = append(m, entry)
	}
	return m, nil
}

// Encode writes m as compact JSON. A nil or empty manifest encodes as [].
func Encode(m Manifest) ([]byte, error) {
	if m == nil {
		m = Manifest{}
	}
	out, err := marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return out, nil
}

// marshal is json.Marshal without HTML escaping; paths keep their & < >.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// FileName returns preset_YYYYMMDD_HMS.json for t. The date is zero padded;
// hour, minute and second are not, so 09:05:07 renders as 957.
func FileName(t time.Time) string {
	return fmt.Sprintf("preset_%04d%02d%02d_%d%d%d.json",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}
