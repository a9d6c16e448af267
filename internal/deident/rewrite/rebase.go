package rewrite

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/codeninja55/dicom-anon/dicom"
	"github.com/codeninja55/dicom-anon/dicom/element"
	"github.com/codeninja55/dicom-anon/dicom/tag"
	"github.com/codeninja55/dicom-anon/dicom/value"
	"github.com/codeninja55/dicom-anon/dicom/vr"
	"github.com/codeninja55/dicom-anon/internal/deident/audit"
	"github.com/codeninja55/dicom-anon/internal/deident/transform"
)

// dateLayout is the DICOM DA value layout (YYYYMMDD).
const dateLayout = "20060102"

// epoch is the zero point relative-date offsets are measured against
// (§4.7).
var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// Rebaser implements the Relative-Date Rebaser (§4.7): a pre-pass over
// the input tree that computes, per configured date tag, the offset
// between the earliest observed date across all subdirectories and the
// epoch, and then applies that offset to every file's date during the
// Dataset Rewriter's per-file pass (§4.6 step 6).
type Rebaser struct {
	tags    []tag.Tag
	offsets map[tag.Tag]time.Duration

	// corrected tracks (tag, studyPK) pairs already rewritten in the
	// audit store during this pass, so a tag's audited cleaned value is
	// updated to its rebased string only once per study scope.
	corrected map[correctionKey]bool
}

type correctionKey struct {
	tag     tag.Tag
	studyPK int64
}

// NewRebaser creates a Rebaser for the given configured date tags. Scan
// must be called before Apply to compute offsets.
func NewRebaser(tags []tag.Tag) *Rebaser {
	return &Rebaser{
		tags:      tags,
		offsets:   make(map[tag.Tag]time.Duration),
		corrected: make(map[correctionKey]bool),
	}
}

// Scan walks root once, examining the first file (by sorted name) in
// each directory, and records the minimum observed value per configured
// date tag (§4.7). Each examined file is parsed in full with
// dicom.ParseFile, pixel data included; parsing does not stop early.
func (r *Rebaser) Scan(root string) error {
	minDates := make(map[tag.Tag]time.Time)

	dirs, err := firstFilePerSubdirectory(root)
	if err != nil {
		return err
	}

	for _, path := range dirs {
		ds, err := dicom.ParseFile(path)
		if err != nil {
			// A subdirectory's lead file that fails to parse simply
			// contributes no observation; the main run will quarantine
			// it on its own pass.
			continue
		}
		for _, t := range r.tags {
			elem, err := ds.Get(t)
			if err != nil {
				continue
			}
			parsed, err := time.Parse(dateLayout, elem.Value().String())
			if err != nil {
				continue
			}
			if existing, ok := minDates[t]; !ok || parsed.Before(existing) {
				minDates[t] = parsed
			}
		}
	}

	for t, first := range minDates {
		r.offsets[t] = first.Sub(epoch)
	}
	return nil
}

// CaptureOriginals snapshots ds's configured date tags as they stand
// before the Attribute Transformer walk overwrites them, keyed by tag.
// A tag absent from ds, or configured but not yet offset by Scan, is
// omitted.
func (r *Rebaser) CaptureOriginals(ds *dicom.DataSet) map[tag.Tag]string {
	originals := make(map[tag.Tag]string, len(r.tags))
	for _, t := range r.tags {
		if _, ok := r.offsets[t]; !ok {
			continue
		}
		elem, err := ds.Get(t)
		if err != nil {
			continue
		}
		originals[t] = elem.Value().String()
	}
	return originals
}

// Apply rewrites ds's configured date tags using the precomputed offset
// applied to originals (each tag's value as captured before the
// Attribute Transformer walk) and, for auditable tags not yet corrected
// in studyPK's scope during this pass, updates the audit store's
// cleaned value to match.
func (r *Rebaser) Apply(store *audit.Store, ds *dicom.DataSet, studyPK int64, originals map[tag.Tag]string) error {
	for _, t := range r.tags {
		offset, ok := r.offsets[t]
		if !ok {
			continue
		}
		originalStr, ok := originals[t]
		if !ok {
			continue
		}

		elem, err := ds.Get(t)
		if err != nil {
			continue
		}

		original, err := time.Parse(dateLayout, originalStr)
		if err != nil {
			continue
		}

		rebased := epoch.Add(original.Sub(epoch) - offset)
		rebasedStr := rebased.Format(dateLayout)

		if err := setDate(elem, rebasedStr); err != nil {
			return err
		}

		if transform.Auditable(t) {
			key := correctionKey{tag: t, studyPK: studyPK}
			if !r.corrected[key] {
				name := tagName(t)
				if err := store.Update(name, originalStr, rebasedStr, studyPK); err != nil {
					return fmt.Errorf("update rebased date audit: %w", err)
				}
				r.corrected[key] = true
			}
		}
	}
	return nil
}

// setDate overwrites elem's value in place with a DA-formatted date.
func setDate(elem *element.Element, dateStr string) error {
	newVal, err := value.NewStringValue(vr.Date, []string{dateStr})
	if err != nil {
		return fmt.Errorf("set date %s: %w", elem.Tag(), err)
	}
	return elem.SetValue(newVal)
}

// tagName returns the dictionary name for t, or "" if unrecognized. The
// audit store keys its per-attribute tables by this name (§4.2).
func tagName(t tag.Tag) string {
	info, err := tag.Find(t)
	if err != nil {
		return ""
	}
	return info.Name
}

// firstFilePerSubdirectory returns, for root and every directory beneath
// it at any depth, the path of its lexicographically first regular file.
func firstFilePerSubdirectory(root string) ([]string, error) {
	firstByDir := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		dir := filepath.Dir(path)
		if existing, ok := firstByDir[dir]; !ok || filepath.Base(path) < filepath.Base(existing) {
			firstByDir[dir] = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan relative-date tree: %w", err)
	}

	paths := make([]string, 0, len(firstByDir))
	for _, p := range firstByDir {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}
