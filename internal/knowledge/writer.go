package knowledge

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/faultlinehq/faultline/internal/database"
	"github.com/faultlinehq/faultline/internal/scrape"
	"github.com/faultlinehq/faultline/internal/synth"
)

// ErrPersistenceFailed means a diagnosis succeeded but could not be written
// back to the knowledge base. Callers must surface this: the result exists
// but was not saved.
var ErrPersistenceFailed = errors.New("persistence failed")

// Writer feeds synthesized and web-discovered solutions back into the
// knowledge base. All writes are explicit: searching never persists as a side
// effect.
type Writer struct {
	db *database.DB
}

// NewWriter creates a Writer over the fault store.
func NewWriter(db *database.DB) *Writer {
	return &Writer{db: db}
}

// Persist creates a new fault record from a synthesized diagnosis. It always
// inserts; there is no update-in-place merging. Returns the new fault ID.
func (w *Writer) Persist(req *synth.Request, d *synth.Diagnosis) (int64, error) {
	record := &database.FaultRecord{
		DeviceType:       req.DeviceType,
		Manufacturer:     req.Manufacturer,
		Model:            req.Model,
		FaultDescription: req.FaultDescription,
		RootCause:        d.RootCause,
		Solution:         d.Solution,
		PartsRequired:    d.PartsRequired,
		Difficulty:       d.Difficulty,
		Provenance:       "ai-synthesized",
	}
	if req.Symptoms != "" {
		record.Symptoms = &req.Symptoms
	}
	if req.ErrorCodes != "" {
		record.ErrorCodes = &req.ErrorCodes
	}
	if d.EstimatedRepairTime != "" {
		record.EstimatedRepairTime = &d.EstimatedRepairTime
	}
	if len(req.DocumentIDs) > 0 {
		record.SourceDocumentID = &req.DocumentIDs[0]
	}

	id, err := w.db.InsertFault(record)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return id, nil
}

// LinkRelated records weak references from a fault to its related prior
// faults. Linking is idempotent; a failed link is logged, not fatal.
func (w *Writer) LinkRelated(faultID int64, relatedIDs []int64) {
	for _, relatedID := range relatedIDs {
		if relatedID == faultID {
			continue
		}
		if err := w.db.LinkFaults(faultID, relatedID); err != nil {
			log.Printf("Failed to link fault %d -> %d: %v", faultID, relatedID, err)
		}
	}
}

// PersistDiscovered promotes a scraped result to a fault record. Only content
// whose extraction found at least one procedure qualifies; the record is
// marked web-discovered to distinguish it from synthesized or admin-entered
// entries. deviceType, manufacturer, and model may be empty when the search
// was not device-scoped.
func (w *Writer) PersistDiscovered(query string, content scrape.ScrapedContent, deviceType, manufacturer, model string) (int64, error) {
	if !content.Info.HasProcedure() {
		return 0, fmt.Errorf("%w: no procedure extracted from %s", ErrPersistenceFailed, content.URL)
	}

	if deviceType == "" {
		deviceType = "Unknown"
	}
	if manufacturer == "" {
		manufacturer = "Unknown"
	}
	if model == "" {
		model = "Unknown"
	}

	rootCause := fmt.Sprintf("Documented in %s: %s", content.SourceName, content.Title)
	website := content.URL

	record := &database.FaultRecord{
		DeviceType:       deviceType,
		Manufacturer:     manufacturer,
		Model:            model,
		FaultDescription: query,
		RootCause:        rootCause,
		Solution:         strings.Join(content.Info.Procedures, "\n"),
		PartsRequired:    content.Info.Parts,
		Difficulty:       "medium",
		Provenance:       "web-discovered",
		SourceWebsite:    &website,
	}
	if len(content.Info.Warnings) > 0 {
		symptoms := strings.Join(content.Info.Warnings, "; ")
		record.Symptoms = &symptoms
	}

	id, err := w.db.InsertFault(record)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return id, nil
}

// RecordQuery appends exactly one audit row for a completed top-level
// request. Callers invoke it once per request, not per source or per fault.
func (w *Writer) RecordQuery(h *database.QueryHistory) error {
	if _, err := w.db.InsertQueryHistory(h); err != nil {
		return fmt.Errorf("%w: recording query history: %v", ErrPersistenceFailed, err)
	}
	return nil
}
