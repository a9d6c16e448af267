package quarantine_test

import (
	"testing"

	"github.com/codeninja55/dicom-anon/dicom"
	"github.com/codeninja55/dicom-anon/dicom/element"
	"github.com/codeninja55/dicom-anon/dicom/tag"
	"github.com/codeninja55/dicom-anon/dicom/value"
	"github.com/codeninja55/dicom-anon/dicom/vr"
	"github.com/codeninja55/dicom-anon/internal/deident/quarantine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setString(t *testing.T, ds *dicom.DataSet, tg tag.Tag, v vr.VR, values ...string) {
	t.Helper()
	val, err := value.NewStringValue(v, values)
	require.NoError(t, err)
	elem, err := element.NewElement(tg, v, val)
	require.NoError(t, err)
	require.NoError(t, ds.Add(elem))
}

func baseDataset(t *testing.T) *dicom.DataSet {
	t.Helper()
	ds := dicom.NewDataSet()
	setString(t, ds, tag.Modality, vr.CodeString, "CT")
	setString(t, ds, tag.SeriesDescription, vr.LongString, "AP")
	return ds
}

func TestClassify_Allowed(t *testing.T) {
	c := quarantine.New([]string{"ct", "mr"}, nil, nil)
	ds := baseDataset(t)
	quarantined, reason := c.Classify(ds)
	assert.False(t, quarantined)
	assert.Empty(t, reason)
}

func TestClassify_ModalityMissing(t *testing.T) {
	c := quarantine.New([]string{"ct"}, nil, nil)
	ds := dicom.NewDataSet()
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "Modality missing", reason)
}

func TestClassify_ModalityNotAllowed(t *testing.T) {
	c := quarantine.New([]string{"mr", "ct"}, nil, nil)
	ds := baseDataset(t)
	setString(t, ds, tag.Modality, vr.CodeString, "NM")
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "modality not allowed", reason)
}

func TestClassify_PatientProtocol(t *testing.T) {
	c := quarantine.New([]string{"ct"}, nil, nil)
	ds := baseDataset(t)
	setString(t, ds, tag.SeriesDescription, vr.LongString, "Patient Protocol")
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "patient protocol", reason)
}

func TestClassify_ScreenCaptureBySeriesDescription(t *testing.T) {
	c := quarantine.New([]string{"ct"}, nil, nil)
	ds := baseDataset(t)
	setString(t, ds, tag.SeriesDescription, vr.LongString, "SAVE SCREEN")
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "Likely screen capture", reason)
}

func TestClassify_BurntInAnnotation(t *testing.T) {
	c := quarantine.New([]string{"ct"}, nil, nil)
	ds := baseDataset(t)
	setString(t, ds, tag.BurntInAnnotation, vr.CodeString, "YES")
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "burnt-in data", reason)
}

func TestClassify_ImageTypeScreenCapture(t *testing.T) {
	c := quarantine.New([]string{"ct"}, nil, nil)
	ds := baseDataset(t)
	setString(t, ds, tag.ImageType, vr.CodeString, "ORIGINAL", "SAVE")
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "Likely screen capture", reason)
}

func TestClassify_SuspectManufacturer_Builtin(t *testing.T) {
	c := quarantine.New([]string{"ct"}, nil, nil)
	ds := baseDataset(t)
	setString(t, ds, tag.Manufacturer, vr.LongString, "PACSGear Imaging Systems")
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "Manufacturer is suspect", reason)
}

func TestClassify_SuspectManufacturer_Supplemented(t *testing.T) {
	c := quarantine.New([]string{"ct"}, []string{"acme teleradiology"}, nil)
	ds := baseDataset(t)
	setString(t, ds, tag.Manufacturer, vr.LongString, "ACME Teleradiology Corp")
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "Manufacturer is suspect", reason)
}

func TestClassify_SuspectModelName(t *testing.T) {
	c := quarantine.New([]string{"ct"}, nil, []string{"frankenscanner"})
	ds := baseDataset(t)
	setString(t, ds, tag.ManufacturerModelName, vr.LongString, "FrankenScanner 9000")
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "Manufacturer model name is suspect", reason)
}

func TestClassify_EvaluationOrder_SeriesDescriptionWinsFirst(t *testing.T) {
	// Modality missing AND series description matches "save": series
	// description is checked first, so its reason wins.
	c := quarantine.New([]string{"ct"}, nil, nil)
	ds := dicom.NewDataSet()
	setString(t, ds, tag.SeriesDescription, vr.LongString, "save this")
	quarantined, reason := c.Classify(ds)
	assert.True(t, quarantined)
	assert.Equal(t, "Likely screen capture", reason)
}
