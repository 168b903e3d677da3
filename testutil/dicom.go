package testutil

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/GoogleCloudPlatform/go-dicom-parser/dicom"
)

// ExplicitVRLittleEndian is the transfer syntax of every generated file.
const ExplicitVRLittleEndian = dicom.ExplicitVRLittleEndianUID

// Common attribute tags.
const (
	TagTransferSyntaxUID uint32 = 0x00020010
	TagSOPClassUID       uint32 = 0x00080016
	TagSOPInstanceUID    uint32 = 0x00080018
	TagModality          uint32 = 0x00080060
	TagPatientName       uint32 = 0x00100010
	TagPatientPosition   uint32 = 0x00185100
	TagStudyInstanceUID  uint32 = 0x0020000D
	TagSeriesInstanceUID uint32 = 0x0020000E
	TagSeriesNumber      uint32 = 0x00200011
	TagInstanceNumber    uint32 = 0x00200013
	TagRows              uint32 = 0x00280010
)

// CTImageStorage is the SOP class of generated instances.
const CTImageStorage = "1.2.840.10008.5.1.4.1.1.2"

// Text builds a string valued element.
func Text(tag uint32, vr *dicom.VR, values ...string) *dicom.DataElement {
	return &dicom.DataElement{Tag: dicom.DataElementTag(tag), VR: vr, ValueField: values}
}

// UShort builds a US element.
func UShort(tag uint32, values ...uint16) *dicom.DataElement {
	return &dicom.DataElement{Tag: dicom.DataElementTag(tag), VR: dicom.USVR, ValueField: values}
}

// Instance describes the identifying attributes of a synthetic image.
type Instance struct {
	StudyUID       string
	SeriesUID      string
	SOPUID         string
	SeriesNumber   int
	InstanceNumber int
	Extra          []*dicom.DataElement
}

// DataSet returns the instance as a dataset ready for dicom.Construct.
func (i Instance) DataSet() *dicom.DataSet {
	elems := []*dicom.DataElement{
		Text(TagSOPClassUID, dicom.UIVR, CTImageStorage),
		Text(TagSOPInstanceUID, dicom.UIVR, i.SOPUID),
		Text(TagModality, dicom.CSVR, "CT"),
		Text(TagStudyInstanceUID, dicom.UIVR, i.StudyUID),
		Text(TagSeriesInstanceUID, dicom.UIVR, i.SeriesUID),
		Text(TagSeriesNumber, dicom.ISVR, strconv.Itoa(i.SeriesNumber)),
		Text(TagInstanceNumber, dicom.ISVR, strconv.Itoa(i.InstanceNumber)),
	}
	return NewDataSet(append(elems, i.Extra...)...)
}

// Bytes encodes the instance as a Part 10 file.
func (i Instance) Bytes() []byte {
	return DICOMFile(i.DataSet())
}

// NewDataSet collects elements into a dataset and adds the explicit VR little
// endian transfer syntax to its file meta group.
func NewDataSet(elems ...*dicom.DataElement) *dicom.DataSet {
	ds := &dicom.DataSet{Elements: map[uint32]*dicom.DataElement{
		TagTransferSyntaxUID: Text(TagTransferSyntaxUID, dicom.UIVR, ExplicitVRLittleEndian),
	}}
	for _, e := range elems {
		ds.Elements[uint32(e.Tag)] = e
	}
	return ds
}

// DICOMFile writes ds with dicom.Construct. It panics on encoder errors, which
// only a malformed fixture can cause.
func DICOMFile(ds *dicom.DataSet) []byte {
	var buf bytes.Buffer
	if err := dicom.Construct(&buf, ds); err != nil {
		panic(fmt.Sprintf("construct dicom fixture: %v", err))
	}
	return buf.Bytes()
}
