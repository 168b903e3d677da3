package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/GoogleCloudPlatform/go-dicom-parser/dicom"
	"github.com/yasushi-saito/go-dicom/dicomtag"
)

// Dataset is the decoder output: the main dataset and the file meta
// information block, both already naturalized.
type Dataset struct {
	Dict Record
	Meta Record
}

// Decoder parses one DICOM Part 10 file.
type Decoder interface {
	Decode(data []byte) (Dataset, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte) (Dataset, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(data []byte) (Dataset, error) { return f(data) }

// ParserDecoder decodes with go-dicom-parser. Bulk data (pixel data,
// waveforms, overlays) is referenced rather than buffered and left out of the
// record.
type ParserDecoder struct{}

// Decode implements Decoder.
func (ParserDecoder) Decode(data []byte) (Dataset, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), dicom.ReferenceBulkData(dicom.DefaultBulkDataDefinition))
	if err != nil {
		return Dataset{}, err
	}
	out := Dataset{Dict: Record{}, Meta: Record{}}
	for _, elem := range ds.Elements {
		if elem == nil {
			continue
		}
		value, ok := naturalizeValue(elem)
		if !ok {
			continue
		}
		if elem.Tag.IsMetadataElement() {
			out.Meta[Keyword(elem.Tag)] = value
		} else {
			out.Dict[Keyword(elem.Tag)] = value
		}
	}
	return out, nil
}

func naturalizeDataSet(ds *dicom.DataSet) Record {
	rec := Record{}
	if ds == nil {
		return rec
	}
	for _, elem := range ds.Elements {
		if elem == nil {
			continue
		}
		if value, ok := naturalizeValue(elem); ok {
			rec[Keyword(elem.Tag)] = value
		}
	}
	return rec
}

// naturalizeValue unwraps a value field. ok is false for bulk data.
func naturalizeValue(elem *dicom.DataElement) (any, bool) {
	vr := ""
	if elem.VR != nil {
		vr = elem.VR.Name
	}
	switch v := elem.ValueField.(type) {
	case []string:
		vals := make([]any, len(v))
		for i, s := range v {
			vals[i] = textValue(vr, s)
		}
		return collapse(vals), true
	case []int16:
		return numbers(v), true
	case []uint16:
		return numbers(v), true
	case []int32:
		return numbers(v), true
	case []uint32:
		return numbers(v), true
	case []float32:
		vals := make([]any, len(v))
		for i, n := range v {
			vals[i] = float64(n)
		}
		return collapse(vals), true
	case []float64:
		vals := make([]any, len(v))
		for i, n := range v {
			vals[i] = n
		}
		return collapse(vals), true
	case *dicom.Sequence:
		items := make([]Record, 0, len(v.Items))
		for _, item := range v.Items {
			items = append(items, naturalizeDataSet(item))
		}
		return items, true
	default:
		// []byte, bulk data buffers and references
		return nil, false
	}
}

func textValue(vr, s string) any {
	switch vr {
	case "IS":
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	case "DS":
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return s
}

type integer interface {
	~int16 | ~uint16 | ~int32 | ~uint32
}

func numbers[T integer](in []T) any {
	vals := make([]any, len(in))
	for i, n := range in {
		vals[i] = int64(n)
	}
	return collapse(vals)
}

// collapse returns single values as scalars and the rest as slices.
func collapse(vals []any) any {
	switch len(vals) {
	case 0:
		return nil
	case 1:
		return vals[0]
	default:
		return vals
	}
}

// Keyword returns the DICOM keyword for tag from the standard data
// dictionary. Private tags and tags the dictionary does not know keep their
// eight digit hex code.
func Keyword(tag dicom.DataElementTag) string {
	if tag.GroupNumber()%2 == 0 {
		t := dicomtag.Tag{Group: tag.GroupNumber(), Element: tag.ElementNumber()}
		if info, err := dicomtag.Find(t); err == nil && info.Name != "" {
			return info.Name
		}
	}
	return fmt.Sprintf("%08X", uint32(tag))
}
