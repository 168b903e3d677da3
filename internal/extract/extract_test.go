package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/GoogleCloudPlatform/go-dicom-parser/dicom"

	"dicompreset/internal/source"
	"dicompreset/testutil"
)

func TestParserDecoderNaturalizes(t *testing.T) {
	data := testutil.Instance{
		StudyUID: "1.2.3", SeriesUID: "1.2.3.4", SOPUID: "1.2.3.4.5",
		SeriesNumber: 2, InstanceNumber: 7,
		Extra: []*dicom.DataElement{
			testutil.Text(testutil.TagPatientName, dicom.PNVR, "Doe^Jane"),
			testutil.Text(testutil.TagPatientPosition, dicom.CSVR, "HFS"),
			testutil.UShort(testutil.TagRows, 512),
		},
	}.Bytes()

	ds, err := ParserDecoder{}.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := ds.Dict.String(StudyInstanceUID); got != "1.2.3" {
		t.Fatalf("StudyInstanceUID = %q", got)
	}
	if got := ds.Dict.String(SOPInstanceUID); got != "1.2.3.4.5" {
		t.Fatalf("SOPInstanceUID = %q", got)
	}
	if v, ok := ds.Dict[InstanceNumber].(int64); !ok || v != 7 {
		t.Fatalf("InstanceNumber = %#v, want int64 7", ds.Dict[InstanceNumber])
	}
	if got := ds.Dict.Int(SeriesNumber); got != 2 {
		t.Fatalf("SeriesNumber = %d", got)
	}
	if v, ok := ds.Dict["Rows"].(int64); !ok || v != 512 {
		t.Fatalf("Rows = %#v", ds.Dict["Rows"])
	}
	if got := ds.Dict.String("PatientName"); got != "Doe^Jane" {
		t.Fatalf("PatientName = %q", got)
	}
	if got := ds.Dict.String("PatientPosition"); got != "HFS" {
		t.Fatalf("PatientPosition = %q", got)
	}
	if got := ds.Meta.String("TransferSyntaxUID"); got != testutil.ExplicitVRLittleEndian {
		t.Fatalf("TransferSyntaxUID = %q", got)
	}
	if _, ok := ds.Dict["TransferSyntaxUID"]; ok {
		t.Fatalf("meta element leaked into dataset")
	}
}

func TestParserDecoderRejectsGarbage(t *testing.T) {
	if _, err := (ParserDecoder{}).Decode([]byte("not a dicom file")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestKeywordFallsBackToHex(t *testing.T) {
	if got := Keyword(0x00091001); got != "00091001" {
		t.Fatalf("Keyword = %s", got)
	}
	if got := Keyword(0x0020000D); got != StudyInstanceUID {
		t.Fatalf("Keyword = %s", got)
	}
}

func TestKeywordUsesFullDictionary(t *testing.T) {
	cases := map[dicom.DataElementTag]string{
		0x00185100: "PatientPosition",
		0x00080064: "ConversionType",
		0x00321060: "RequestedProcedureDescription",
		0x00080104: "CodeMeaning",
		0x00020010: "TransferSyntaxUID",
	}
	for tag, want := range cases {
		if got := Keyword(tag); got != want {
			t.Fatalf("Keyword(%08X) = %s want %s", uint32(tag), got, want)
		}
	}
	if got := Keyword(0x00291010); got != "00291010" {
		t.Fatalf("private tag should stay hex, got %s", got)
	}
}

func TestRecordAccessors(t *testing.T) {
	r := Record{
		"a":     "text",
		"b":     []any{"first", "second"},
		"c":     int64(3),
		"d":     " 12 ",
		"e":     4.9,
		"f":     "x",
		"g":     []string{"9"},
		KeyMeta: Record{"TransferSyntaxUID": "1.2"},
	}
	if r.String("a") != "text" || r.String("b") != "first" || r.String("c") != "3" || r.String("missing") != "" {
		t.Fatalf("String accessors wrong")
	}
	cases := map[string]int{"c": 3, "d": 12, "e": 4, "f": 0, "g": 9, "missing": 0}
	for k, want := range cases {
		if got := r.Int(k); got != want {
			t.Fatalf("Int(%q) = %d want %d", k, got, want)
		}
	}
	if r.Meta().String("TransferSyntaxUID") != "1.2" {
		t.Fatalf("Meta accessor wrong")
	}
}

func TestExtractFailureKeepsFileName(t *testing.T) {
	ex := &Extractor{Decoder: DecoderFunc(func([]byte) (Dataset, error) { return Dataset{}, errors.New("bad header") })}
	res := ex.Extract(source.Blob{Key: "p/x.dcm", Name: "x.dcm", Data: []byte{1}})
	if !res.Failed() || res.FileName != "x.dcm" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Record) != 1 || res.Record.String(KeyFileName) != "x.dcm" {
		t.Fatalf("failure record should hold only the file name: %v", res.Record)
	}
}

func TestExtractRecoversDecoderPanic(t *testing.T) {
	ex := &Extractor{Decoder: DecoderFunc(func([]byte) (Dataset, error) { panic("corrupt") })}
	res := ex.Extract(source.Blob{Name: "p.dcm"})
	if !res.Failed() || res.Record.String(KeyFileName) != "p.dcm" {
		t.Fatalf("panic not converted: %+v", res)
	}
}

func TestExtractAllKeepsOrderAndNeverAborts(t *testing.T) {
	good := testutil.Instance{StudyUID: "S", SeriesUID: "SE", SOPUID: "I", InstanceNumber: 1}.Bytes()
	blobs := []source.Blob{
		{Name: "a.dcm", Data: good},
		{Name: "b.dcm", Data: []byte("junk")},
		{Name: "c.dcm", Data: good},
	}
	ex := &Extractor{Concurrency: 2}
	results, err := ex.ExtractAll(context.Background(), blobs)
	if err != nil {
		t.Fatalf("extract all: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, name := range []string{"a.dcm", "b.dcm", "c.dcm"} {
		if results[i].FileName != name {
			t.Fatalf("result %d = %s want %s", i, results[i].FileName, name)
		}
	}
	if Failures(results) != 1 || !results[1].Failed() {
		t.Fatalf("expected only b.dcm to fail")
	}
	if results[0].Record.String(KeyFileName) != "a.dcm" || results[0].Record.Meta() == nil {
		t.Fatalf("decoded record missing reserved keys: %v", results[0].Record)
	}
}

func TestExtractAllHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := &Extractor{}
	if _, err := ex.ExtractAll(ctx, []source.Blob{{Name: "a"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
