// Package transform implements the Attribute Transformer (§4.5): the
// per-attribute decision engine invoked during the dataset walk, which
// decides whether an attribute is kept, replaced, or removed.
package transform

import (
	"fmt"

	"github.com/codeninja55/dicom-anon/dicom/element"
	"github.com/codeninja55/dicom-anon/dicom/tag"
	"github.com/codeninja55/dicom-anon/dicom/value"
	"github.com/codeninja55/dicom-anon/dicom/vr"
	"github.com/codeninja55/dicom-anon/internal/deident/audit"
	"github.com/codeninja55/dicom-anon/internal/deident/spectable"
	"github.com/codeninja55/dicom-anon/internal/deident/whitelist"
)

// Profile selects between the Basic and Clean-Descriptors confidentiality
// profiles (§4.1, §4.5).
type Profile int

const (
	ProfileBasic Profile = iota
	ProfileClean
)

// removalText is recorded as the audit-preferred replacement when an
// attribute is removed under directive X (§4.5).
const removalText = "^^Audit Trail - Removed by dicom-anon - Audit Trail^^"

// cleanedDate is the fixed replacement for VR DA (§9: CLEANED_DATE is
// specified as 19010101, not 20000101).
const cleanedDate = "19010101"

// cleanedTime is the fixed replacement for VR DT/TM.
const cleanedTime = "000000.00"

// auditableTags is the fixed set from §4.5: an attribute's replacement
// is persisted to the audit store only if its tag is a member.
var auditableTags = map[tag.Tag]bool{
	tag.StudyInstanceUID:                true,
	tag.SeriesInstanceUID:                true,
	tag.SOPInstanceUID:                   true,
	tag.StudyDate:                        true,
	tag.AccessionNumber:                  true,
	tag.InstitutionName:                  true,
	tag.InstitutionAddress:               true,
	tag.ReferringPhysicianName:           true,
	tag.ReferringPhysicianAddress:        true,
	tag.ReferringPhysicianTelephoneNumbers: true,
	tag.ConsultingPhysicianName:          true,
	tag.PerformingPhysicianName:          true,
	tag.OperatorsName:                    true,
	tag.StationName:                      true,
	tag.PatientName:                      true,
	tag.PatientBirthName:                 true,
	tag.PatientID:                        true,
	tag.PatientBirthDate:                 true,
}

// Auditable reports whether tg is in the fixed auditable-attribute set.
func Auditable(tg tag.Tag) bool {
	return auditableTags[tg]
}

// vrSweepSet is the stage-2 VR sweep set (§4.5): attributes not named in
// the specification table are deleted if their VR is one of these,
// except Pixel Data.
var vrSweepSet = map[vr.VR]bool{
	vr.PersonName:           true,
	vr.CodeString:           true,
	vr.UniqueIdentifier:     true,
	vr.Date:                 true,
	vr.DateTime:             true,
	vr.LongText:             true,
	vr.Unknown:              true,
	vr.UnlimitedText:        true,
	vr.ShortText:            true,
	vr.ApplicationEntity:    true,
	vr.LongString:           true,
	vr.Time:                 true,
	vr.ShortString:          true,
	vr.AgeString:            true,
	vr.OtherByte:            true,
	vr.OtherWord:            true,
}

// Transformer carries the state consulted on every attribute decision:
// the specification table, the whitelist, the audit store, the UID
// generator, and the active run options.
type Transformer struct {
	Table      *spectable.Table
	Whitelist  *whitelist.Whitelist
	Store      *audit.Store
	Identifier interface{ Next() string }
	Profile    Profile
	KeepOverlay bool

	// Logger receives whitelist rejection notices (§4.5: "if it is in
	// the whitelist but the normalized value is not a member, the check
	// returns false and logs an informational rejection"). Optional.
	Logger func(format string, args ...any)
}

// pixelData is exempted from both the VR sweep and stage-3 structural
// sweeps.
var pixelData = tag.New(0x7FE0, 0x0010)

// Decide evaluates the Attribute Transformer pipeline against a single
// element. It reports whether the element survives (mutating it in
// place when a directive replaces its value), or false if the element
// should be removed from the dataset.
//
// studyPK scopes audit-store lookups; it is ignored for Study Instance
// UID, which the Dataset Rewriter resolves during its own prologue.
func (tr *Transformer) Decide(e *element.Element, studyPK int64) (keep bool, err error) {
	tg := e.Tag()

	if e.IsSequence() {
		return false, nil
	}

	if rule, ok := tr.Table.Lookup(tg); ok {
		return tr.applyProfileRule(e, rule, studyPK)
	}

	if tr.Profile == ProfileClean {
		if tr.tryWhitelist(e) {
			return true, nil
		}
	}

	if tg != pixelData && vrSweepSet[e.VR()] {
		return false, nil
	}

	if group := tg.Group; !tr.KeepOverlay && (group>>8) == 0x60 && tg.Element == 0x3000 {
		return false, nil
	}
	if group := tg.Group; (group>>8) == 0x60 && tg.Element == 0x4000 {
		return false, nil
	}
	if group := tg.Group; (group>>8) == 0x50 {
		return false, nil
	}

	if tg.Group == 0x1000 {
		return false, nil
	}

	return true, nil
}

func (tr *Transformer) applyProfileRule(e *element.Element, rule spectable.Rule, studyPK int64) (bool, error) {
	if tr.Profile == ProfileClean && rule.Cleanable {
		if tr.tryWhitelist(e) {
			return true, nil
		}
	}

	return tr.applyDirective(e, rule.Directive, studyPK)
}

// tryWhitelist reports whether e's value is retained unchanged under the
// whitelist check (§4.5). A tag absent from the whitelist configuration
// returns false silently; a tag present but rejected logs an
// informational notice.
func (tr *Transformer) tryWhitelist(e *element.Element) bool {
	tg := e.Tag()
	if !tr.Whitelist.Configured(tg) {
		return false
	}

	text := valueText(e)
	if tr.Whitelist.Allows(tg, text) {
		return true
	}

	if tr.Logger != nil {
		tr.Logger("whitelist rejected tag=%s value=%q", tg, text)
	}
	return false
}

func (tr *Transformer) applyDirective(e *element.Element, d spectable.Directive, studyPK int64) (bool, error) {
	tg := e.Tag()
	original := valueText(e)

	switch d {
	case spectable.DirectiveKeep:
		return true, nil

	case spectable.DirectiveRemove:
		cleaned := removalText
		if prior, ok, err := tr.Store.Get(tagName(tg), original, studyPK); err != nil {
			return false, err
		} else if ok {
			cleaned = prior
		}
		if Auditable(tg) && tg != tag.StudyInstanceUID {
			if err := tr.saveAuditIfAbsent(tg, original, cleaned, studyPK); err != nil {
				return false, err
			}
		}
		return false, nil

	case spectable.DirectiveUID:
		if prior, ok, err := tr.Store.Get(tagName(tg), original, studyPK); err != nil {
			return false, err
		} else if ok {
			return true, setStringValue(e, prior)
		}
		newUID := tr.Identifier.Next()
		if Auditable(tg) && tg != tag.StudyInstanceUID {
			if err := tr.saveAuditIfAbsent(tg, original, newUID, studyPK); err != nil {
				return false, err
			}
		}
		return true, setStringValue(e, newUID)

	case spectable.DirectiveDummy, spectable.DirectiveEmpty:
		if prior, ok, err := tr.Store.Get(tagName(tg), original, studyPK); err != nil {
			return false, err
		} else if ok {
			return true, setStringValue(e, prior)
		}

		replacement, err := tr.vrReplacement(e, tg)
		if err != nil {
			return false, err
		}

		if Auditable(tg) && tg != tag.StudyInstanceUID {
			if err := tr.saveAuditIfAbsent(tg, original, replacement, studyPK); err != nil {
				return false, err
			}
		}

		return true, setStringValue(e, replacement)

	default:
		return false, fmt.Errorf("unknown directive %q for tag %s", rune(d), tg)
	}
}

// vrReplacement computes the VR-appropriate replacement text (§4.5).
func (tr *Transformer) vrReplacement(e *element.Element, tg tag.Tag) (string, error) {
	switch e.VR() {
	case vr.DateTime, vr.Time:
		return cleanedTime, nil
	case vr.Date:
		return cleanedDate, nil
	case vr.UniqueIdentifier:
		return tr.Identifier.Next(), nil
	default:
		name := tagName(tg)
		if Auditable(tg) && name != "" {
			n, err := tr.Store.NextID(name)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s %d", name, n), nil
		}
		return "CLEANED", nil
	}
}

func (tr *Transformer) saveAuditIfAbsent(tg tag.Tag, original, cleaned string, studyPK int64) error {
	name := tagName(tg)
	if _, ok, err := tr.Store.Get(name, original, studyPK); err != nil {
		return err
	} else if ok {
		return nil
	}
	return tr.Store.Save(name, original, cleaned, studyPK)
}

// valueText renders an element's value the way the audit store expects
// it serialized: multi-valued attributes joined with "/" (§4.2).
func valueText(e *element.Element) string {
	if sv, ok := e.Value().(*value.StringValue); ok {
		return audit.JoinOriginal(sv.Strings())
	}
	return e.Value().String()
}

// setStringValue overwrites e's value in place with a single-component
// string, keeping e's existing VR (the directive table only ever routes
// an attribute through a replacement whose text is valid for that
// attribute's declared VR).
func setStringValue(e *element.Element, text string) error {
	newVal, err := value.NewStringValue(e.VR(), []string{text})
	if err != nil {
		return fmt.Errorf("replace %s: %w", e.Tag(), err)
	}
	if err := e.SetValue(newVal); err != nil {
		return fmt.Errorf("replace %s: %w", e.Tag(), err)
	}
	return nil
}

// tagName returns the dictionary name for tg, or "" if tg is not a
// recognized tag. The audit store keys its per-attribute tables by this
// name (§4.2).
func tagName(tg tag.Tag) string {
	info, err := tag.Find(tg)
	if err != nil {
		return ""
	}
	return info.Name
}
