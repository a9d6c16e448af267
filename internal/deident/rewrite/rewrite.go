// Package rewrite implements the Dataset Rewriter (§4.6): the per-file
// pipeline that resolves study scope, walks the dataset through the
// Attribute Transformer, rewrites file-meta, and stamps the
// de-identification method markers.
package rewrite

import (
	"fmt"

	"github.com/codeninja55/dicom-anon/dicom"
	"github.com/codeninja55/dicom-anon/dicom/element"
	"github.com/codeninja55/dicom-anon/dicom/tag"
	"github.com/codeninja55/dicom-anon/dicom/value"
	"github.com/codeninja55/dicom-anon/dicom/vr"
	"github.com/codeninja55/dicom-anon/internal/deident/audit"
	"github.com/codeninja55/dicom-anon/internal/deident/transform"
)

// fileMetaAllowed is the allowed file-meta tag set (§6): every other
// file-meta attribute, and any file-meta sequence, is deleted in step 5.
var fileMetaAllowed = map[tag.Tag]bool{
	tag.New(0x0002, 0x0000): true,
	tag.New(0x0002, 0x0001): true,
	tag.MediaStorageSOPClassUID:    true,
	tag.MediaStorageSOPInstanceUID: true,
	tag.TransferSyntaxUID:          true,
	tag.ImplementationClassUID:     true,
	tag.ImplementationVersionName:  true,
}

// csaHeaderTags are snapshotted and restored around the walk when
// KeepCSAHeaders is set (§4.6 steps 3, 7).
var csaHeaderTags = []tag.Tag{
	tag.SiemensCSAImageHeaderType,
	tag.SiemensCSAImageHeaderInfo,
	tag.SiemensCSASeriesHeaderInfo,
}

// methodCodeBasic and methodCodeClean are the DS values stamped into
// the De-identification Method Code Sequence (§4.6 step 8). The tag/VR
// combination here is taken verbatim from the specification: it departs
// from both the dataset's own dictionary entry for (0008,0102), which
// carries VR SH, and from the conventional DICOM placement of a coding
// scheme's code value at (0008,0100). element.NewElement only validates
// a value against the VR it is constructed with, not against any
// external dictionary, so constructing this element literally as
// specified is possible and is what is implemented here.
const (
	methodCodeBasic = "113100"
	methodCodeClean = "113105"
)

// Options configures a Rewriter's behavior for a run.
type Options struct {
	Profile         transform.Profile
	KeepPrivateTags bool
	KeepCSAHeaders  bool
	Rename          bool
}

// Rewriter drives the 9-step per-file pipeline of §4.6.
type Rewriter struct {
	Transformer *transform.Transformer
	Store       *audit.Store
	Options     Options
	Rebaser     *Rebaser // nil if relative-date rebasing is not configured
}

// New creates a Rewriter.
func New(tr *transform.Transformer, store *audit.Store, opts Options) *Rewriter {
	return &Rewriter{Transformer: tr, Store: store, Options: opts}
}

// Result carries the outcome of rewriting a single dataset: the cleaned
// dataset and the basename the caller should write it under.
type Result struct {
	DataSet    *dicom.DataSet
	OutputName string
}

// Rewrite executes the 9-step pipeline against ds, named originalName in
// its source tree.
func (rw *Rewriter) Rewrite(ds *dicom.DataSet, originalName string) (*Result, error) {
	// Step 1: resolve Study Instance UID scope.
	studyPK, _, err := rw.resolveStudyScope(ds)
	if err != nil {
		return nil, fmt.Errorf("resolve study scope: %w", err)
	}

	// Step 2: remove private (odd-group) tags.
	if !rw.Options.KeepPrivateTags {
		if err := ds.RemovePrivateTags(); err != nil {
			return nil, fmt.Errorf("remove private tags: %w", err)
		}
	}

	// Step 3: snapshot CSA headers.
	var csaSnapshot []*element.Element
	if rw.Options.KeepCSAHeaders {
		csaSnapshot = snapshotElements(ds, csaHeaderTags)
	}

	// Relative-date rebasing needs each configured tag's value as it was
	// before the walk replaces it with a dummy cleaned date (step 6
	// rebases the original date, not the already-cleaned one), so it is
	// captured here, ahead of step 4.
	var originalDates map[tag.Tag]string
	if rw.Rebaser != nil {
		originalDates = rw.Rebaser.CaptureOriginals(ds)
	}

	// Step 4: walk the entire dataset, invoking the Attribute Transformer.
	// File-meta is a distinct sub-dataset (see dicom.DataSet.FileMeta) and
	// is never visited by this walk; it is rewritten separately in step 5.
	if err := ds.WalkRecursive(func(elem *element.Element, depth int) (bool, error) {
		keep, err := rw.Transformer.Decide(elem, studyPK)
		if err != nil {
			return false, err
		}
		if !keep {
			return false, dicom.ErrRemoveElement
		}
		return true, nil
	}); err != nil {
		return nil, fmt.Errorf("transform dataset: %w", err)
	}

	// Step 5: rewrite file-meta with the cleaned SOP Instance UID.
	cleanedSOPUID, err := stringValue(ds, tag.SOPInstanceUID)
	if err != nil {
		return nil, fmt.Errorf("missing SOP Instance UID after transform: %w", err)
	}
	if err := rw.rewriteFileMeta(ds, cleanedSOPUID); err != nil {
		return nil, fmt.Errorf("rewrite file meta: %w", err)
	}

	// Step 6: relative-date rebasing.
	if rw.Rebaser != nil {
		if err := rw.Rebaser.Apply(rw.Store, ds, studyPK, originalDates); err != nil {
			return nil, fmt.Errorf("rebase dates: %w", err)
		}
	}

	// Step 7: restore snapshotted CSA headers.
	if rw.Options.KeepCSAHeaders {
		for _, e := range csaSnapshot {
			if err := ds.Add(e); err != nil {
				return nil, fmt.Errorf("restore csa header: %w", err)
			}
		}
	}

	// Step 8: stamp the de-identification method markers.
	if err := stampMethod(ds, rw.Options.Profile); err != nil {
		return nil, fmt.Errorf("stamp method: %w", err)
	}

	// Step 9: name the output file.
	outputName := originalName
	if rw.Options.Rename {
		outputName = cleanedSOPUID + ".dcm"
	}

	return &Result{DataSet: ds, OutputName: outputName}, nil
}

// resolveStudyScope implements §4.6 step 1: look up the dataset's
// original Study Instance UID in the audit store; generate and save a
// new one if absent; return the study-scope primary key and the cleaned
// Study Instance UID. ds itself is left unchanged here: the step 4 walk
// finds the cleaned value in the audit store under the original UID.
func (rw *Rewriter) resolveStudyScope(ds *dicom.DataSet) (studyPK int64, cleanedUID string, err error) {
	original, err := stringValue(ds, tag.StudyInstanceUID)
	if err != nil {
		return 0, "", err
	}

	attr := "StudyInstanceUID"
	cleaned, ok, err := rw.Store.Get(attr, original, 0)
	if err != nil {
		return 0, "", err
	}
	if !ok {
		cleaned = rw.Transformer.Identifier.Next()
		if err := rw.Store.Save(attr, original, cleaned, 0); err != nil {
			return 0, "", err
		}
	}

	pk, err := rw.Store.StudyPK(cleaned)
	if err != nil {
		return 0, "", err
	}

	return pk, cleaned, nil
}

// rewriteFileMeta implements §4.6 step 5.
func (rw *Rewriter) rewriteFileMeta(ds *dicom.DataSet, cleanedSOPUID string) error {
	meta := ds.FileMeta()
	if meta == nil {
		return nil
	}

	if elem, err := meta.Get(tag.MediaStorageSOPInstanceUID); err == nil {
		newVal, err := value.NewStringValue(vr.UniqueIdentifier, []string{cleanedSOPUID})
		if err != nil {
			return err
		}
		if err := elem.SetValue(newVal); err != nil {
			return err
		}
	}

	for _, t := range meta.Tags() {
		if fileMetaAllowed[t] {
			if elem, err := meta.Get(t); err == nil && elem.IsSequence() {
				_ = meta.Remove(t)
			}
			continue
		}
		_ = meta.Remove(t)
	}

	return nil
}

// stampMethod implements §4.6 step 8.
func stampMethod(ds *dicom.DataSet, profile transform.Profile) error {
	flagVal, err := value.NewStringValue(vr.CodeString, []string{"YES"})
	if err != nil {
		return err
	}
	flagElem, err := element.NewElement(tag.PatientIdentityRemoved, vr.CodeString, flagVal)
	if err != nil {
		return err
	}
	if err := ds.Add(flagElem); err != nil {
		return err
	}

	codes := []string{methodCodeBasic}
	if profile == transform.ProfileClean {
		codes = append(codes, methodCodeClean)
	}
	codeVal, err := value.NewStringValue(vr.DecimalString, codes)
	if err != nil {
		return err
	}
	codeElem, err := element.NewElement(tag.CodingSchemeDesignator, vr.DecimalString, codeVal)
	if err != nil {
		return err
	}

	item := element.NewItem([]*element.Element{codeElem})
	seqElem, err := element.NewSequenceElement(tag.DeidentificationMethodCodeSequence, []*element.Item{item})
	if err != nil {
		return err
	}
	return ds.Add(seqElem)
}

// snapshotElements copies the named elements out of ds, for restoration
// after a stage that might otherwise delete them.
func snapshotElements(ds *dicom.DataSet, tags []tag.Tag) []*element.Element {
	snapshot := make([]*element.Element, 0, len(tags))
	for _, t := range tags {
		if e, err := ds.Get(t); err == nil {
			snapshot = append(snapshot, e)
		}
	}
	return snapshot
}

func stringValue(ds *dicom.DataSet, t tag.Tag) (string, error) {
	elem, err := ds.Get(t)
	if err != nil {
		return "", fmt.Errorf("missing %s: %w", t, err)
	}
	if sv, ok := elem.Value().(*value.StringValue); ok {
		strs := sv.Strings()
		if len(strs) > 0 {
			return strs[0], nil
		}
		return "", nil
	}
	return elem.Value().String(), nil
}
