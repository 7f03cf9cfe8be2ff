package session

import (
	"github.com/example/id-verify/internal/capture"
	"github.com/example/id-verify/internal/classifier"
)

// Session is one in-memory verification flow instance. It owns the captured
// images and all data derived from them until completion or abandonment;
// nothing is persisted, so an abandoned session leaves no partial account.
type Session struct {
	ID          string
	Flow        Flow
	Phase       Phase
	Captures    capture.CaptureSet
	FaceMatched bool
	Extracted   *classifier.Result
	Edits       map[string]string
}

// ApplyEdits merges user overrides into the session field-by-field. Edits
// accumulate across saves; an edit overrides the classifier's value for that
// field only.
func (s *Session) ApplyEdits(edits map[string]string) {
	if len(edits) == 0 {
		return
	}
	if s.Edits == nil {
		s.Edits = make(map[string]string, len(edits))
	}
	for field, value := range edits {
		s.Edits[field] = value
	}
}

// MergedRecord overlays the accumulated edits onto the extracted record. The
// result always contains every extracted field unless the user explicitly
// cleared it.
func (s *Session) MergedRecord() classifier.Record {
	var rec classifier.Record
	if s.Extracted != nil {
		rec = s.Extracted.Record
	}
	for field, value := range s.Edits {
		applyField(&rec, field, value)
	}
	rec.Name = rec.FirstName + " " + rec.LastName
	return rec
}

// applyField maps an edit key (the record's wire field name) onto the
// record. Unknown keys are ignored.
func applyField(rec *classifier.Record, field, value string) {
	switch field {
	case "first_name":
		rec.FirstName = value
	case "last_name":
		rec.LastName = value
	case "id_number":
		rec.IDNumber = value
	case "date_of_birth":
		rec.DateOfBirth = value
	case "place_of_birth":
		rec.PlaceOfBirth = value
	case "expiry_date":
		rec.ExpiryDate = value
	case "father_name":
		rec.FatherName = value
	case "mother_name":
		rec.MotherName = value
	case "address":
		rec.Address = value
	case "civil_status_number":
		rec.CivilStatusNumber = value
	case "gender":
		rec.Gender = value
	}
}

// Discard drops every image buffer and all derived data. Every path that
// ends the session goes through here.
func (s *Session) Discard() {
	s.Captures.Clear()
	s.Extracted = nil
	s.Edits = nil
}
