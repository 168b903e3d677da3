// Package hierarchy groups per-file instance records into the DICOM
// Study -> Series -> Instance tree and orders it.
package hierarchy

import (
	"sort"

	"dicompreset/internal/extract"
)

// Instance is one decoded file.
type Instance struct {
	SOPInstanceUID string
	InstanceNumber int
	FileName       string
	Metadata       extract.Record
}

// Series groups instances sharing a SeriesInstanceUID.
type Series struct {
	SeriesInstanceUID string
	SeriesNumber      int
	Instances         []Instance
}

// Study groups series sharing a StudyInstanceUID.
type Study struct {
	StudyInstanceUID string
	Series           []Series
}

// FromRecord wraps one record in a single-series, single-instance study.
func FromRecord(rec extract.Record) Study {
	inst := Instance{
		SOPInstanceUID: rec.String(extract.SOPInstanceUID),
		InstanceNumber: rec.Int(extract.InstanceNumber),
		FileName:       rec.String(extract.KeyFileName),
		Metadata:       rec,
	}
	return Study{
		StudyInstanceUID: rec.String(extract.StudyInstanceUID),
		Series: []Series{{
			SeriesInstanceUID: rec.String(extract.SeriesInstanceUID),
			SeriesNumber:      rec.Int(extract.SeriesNumber),
			Instances:         []Instance{inst},
		}},
	}
}

// FromResult converts one extraction result. A failed decode becomes an
// instance with empty identifiers, so it lands in its own study and series.
func FromResult(r extract.Result) Study {
	if r.Failed() || r.Record == nil {
		return FromRecord(extract.Record{extract.KeyFileName: r.FileName})
	}
	return FromRecord(r.Record)
}

// FromResults converts every result in order.
func FromResults(results []extract.Result) []Study {
	out := make([]Study, 0, len(results))
	for _, r := range results {
		out = append(out, FromResult(r))
	}
	return out
}

// Group merges studies by StudyInstanceUID and, inside each study, series by
// SeriesInstanceUID. Each level draws synthetic keys for empty identifiers
// from its own counter. The input is not modified.
func Group(studies []Study) []Study {
	grouped := GroupBy(Clone(studies),
		func(s Study) string { return s.StudyInstanceUID },
		func(dst *Study, src Study) { dst.Series = append(dst.Series, src.Series...) },
	)
	for i := range grouped {
		grouped[i].Series = GroupBy(grouped[i].Series,
			func(s Series) string { return s.SeriesInstanceUID },
			func(dst *Series, src Series) { dst.Instances = append(dst.Instances, src.Instances...) },
		)
	}
	return grouped
}

// SortInstances orders instances by InstanceNumber. Groups of one are left alone.
func (s *Series) SortInstances() {
	if len(s.Instances) <= 1 {
		return
	}
	sort.SliceStable(s.Instances, func(i, j int) bool {
		return s.Instances[i].InstanceNumber < s.Instances[j].InstanceNumber
	})
}

// SortSeries orders series by SeriesNumber, then each series' instances.
func (s *Study) SortSeries() {
	if len(s.Series) > 1 {
		sort.SliceStable(s.Series, func(i, j int) bool {
			return s.Series[i].SeriesNumber < s.Series[j].SeriesNumber
		})
	}
	for i := range s.Series {
		s.Series[i].SortInstances()
	}
}

// Sort orders every study in place.
func Sort(studies []Study) {
	for i := range studies {
		studies[i].SortSeries()
	}
}

// Clone deep-copies the tree structure. Metadata records are shared; they
// are never modified after extraction.
func Clone(studies []Study) []Study {
	out := make([]Study, len(studies))
	for i, st := range studies {
		out[i] = Study{StudyInstanceUID: st.StudyInstanceUID, Series: make([]Series, len(st.Series))}
		for j, se := range st.Series {
			out[i].Series[j] = Series{
				SeriesInstanceUID: se.SeriesInstanceUID,
				SeriesNumber:      se.SeriesNumber,
				Instances:         append([]Instance(nil), se.Instances...),
			}
		}
	}
	return out
}
