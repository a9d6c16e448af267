// Package quarantine implements the classifier (§4.4) that decides
// whether an input dataset should be diverted to the quarantine output
// tree instead of being de-identified and copied to the clean tree.
package quarantine

import (
	"strings"

	"github.com/codeninja55/dicom-anon/dicom"
	"github.com/codeninja55/dicom-anon/dicom/tag"
	"github.com/codeninja55/dicom-anon/dicom/value"
)

// Classifier evaluates the quarantine rules against a dataset, in the
// fixed order mandated by the specification table: the first matching
// rule wins.
type Classifier struct {
	// AllowedModalities is the configured lower-cased modality allow
	// list (e.g. "mr", "ct").
	AllowedModalities map[string]bool

	// SuspectManufacturers and SuspectModelNames extend the built-in
	// substrings with operator-configured ones (§6 supplemented
	// --suspect_manufacturer / --suspect_model_name flags).
	SuspectManufacturers []string
	SuspectModelNames    []string
}

// New creates a Classifier with the given modality allow list
// (case-insensitive) and supplemented suspect-vendor extension lists.
func New(modalities []string, suspectManufacturers, suspectModelNames []string) *Classifier {
	allowed := make(map[string]bool, len(modalities))
	for _, m := range modalities {
		allowed[strings.ToLower(strings.TrimSpace(m))] = true
	}
	return &Classifier{
		AllowedModalities:    allowed,
		SuspectManufacturers: suspectManufacturers,
		SuspectModelNames:    suspectModelNames,
	}
}

var builtinSuspectManufacturers = []string{
	"north american imaging, inc",
	"pacsgear",
}

var builtinSuspectModelNames = []string{
	"the dicom box",
}

// Classify returns (true, reason) if ds should be quarantined, else
// (false, "").
func (c *Classifier) Classify(ds *dicom.DataSet) (bool, string) {
	if desc, ok := stringValues(ds, tag.SeriesDescription); ok {
		joined := strings.ToLower(strings.TrimSpace(strings.Join(desc, " ")))
		if strings.Contains(joined, "patient protocol") {
			return true, "patient protocol"
		}
		if strings.Contains(joined, "save") {
			return true, "Likely screen capture"
		}
	}

	modality, ok := stringValues(ds, tag.Modality)
	if !ok || len(modality) == 0 {
		return true, "Modality missing"
	}
	for _, m := range modality {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" || !c.AllowedModalities[m] {
			return true, "modality not allowed"
		}
	}

	if bia, ok := stringValues(ds, tag.BurntInAnnotation); ok && len(bia) > 0 {
		v := strings.ToLower(strings.TrimSpace(bia[0]))
		if v == "yes" || v == "y" {
			return true, "burnt-in data"
		}
	}

	if imageType, ok := stringValues(ds, tag.ImageType); ok {
		for _, component := range imageType {
			if strings.Contains(strings.ToLower(strings.TrimSpace(component)), "save") {
				return true, "Likely screen capture"
			}
		}
	}

	if manufacturer, ok := stringValues(ds, tag.Manufacturer); ok && len(manufacturer) > 0 {
		joined := strings.ToLower(manufacturer[0])
		for _, suspect := range append(append([]string{}, builtinSuspectManufacturers...), c.SuspectManufacturers...) {
			if strings.Contains(joined, strings.ToLower(suspect)) {
				return true, "Manufacturer is suspect"
			}
		}
	}

	if model, ok := stringValues(ds, tag.ManufacturerModelName); ok && len(model) > 0 {
		joined := strings.ToLower(model[0])
		for _, suspect := range append(append([]string{}, builtinSuspectModelNames...), c.SuspectModelNames...) {
			if strings.Contains(joined, strings.ToLower(suspect)) {
				return true, "Manufacturer model name is suspect"
			}
		}
	}

	return false, ""
}

// stringValues fetches a tag's string components if present. Absence
// (tag not in the dataset, or present with a non-string VR) reports ok=false.
func stringValues(ds *dicom.DataSet, t tag.Tag) ([]string, bool) {
	elem, err := ds.Get(t)
	if err != nil {
		return nil, false
	}
	sv, ok := elem.Value().(*value.StringValue)
	if !ok {
		return nil, false
	}
	return sv.Strings(), true
}
