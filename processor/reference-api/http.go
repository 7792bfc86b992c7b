package referenceapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/tether/extract"
	"github.com/c360studio/tether/link"
	"github.com/c360studio/tether/reference"
	"github.com/c360studio/tether/storage"
)

// IngestRequest is the document-ingestion body.
type IngestRequest struct {
	// Document is the raw document text to scan for code links.
	Document string `json:"document"`
	// Ref optionally pins the snapshot to a commit or branch; empty means
	// the repository default branch.
	Ref string `json:"ref,omitempty"`
}

// IngestError reports one link that could not become a reference.
type IngestError struct {
	Link  string `json:"link"`
	Error string `json:"error"`
}

// IngestResponse lists the created references and the per-link failures.
type IngestResponse struct {
	References []reference.CodeReference `json:"references"`
	Errors     []IngestError             `json:"errors,omitempty"`
}

// ResolveRequest names the resolution action for a reference.
type ResolveRequest struct {
	// Action is "reactivate" or "ignore".
	Action string `json:"action"`
}

// RegisterHTTPHandlers registers all reference-api handlers under the given
// prefix. The prefix should be the path segment without a trailing slash
// (e.g. "api"). Handlers are registered as:
//
//	POST <prefix>/references/ingest
//	GET  <prefix>/references?owner=&repo=
//	POST <prefix>/references/{id}/resolve
//	POST <prefix>/events/{id}/requeue
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"references/ingest", c.handleIngest)
	mux.HandleFunc(prefix+"references", c.handleList)
	mux.HandleFunc(prefix+"references/", c.routeReference(prefix))
	mux.HandleFunc(prefix+"events/", c.routeEvent(prefix))
}

// routeReference dispatches /references/{id}/{action} paths.
func (c *Component) routeReference(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix+"references/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "resolve" && parts[0] != "" {
			c.handleResolve(w, r, parts[0])
			return
		}
		http.NotFound(w, r)
	}
}

// routeEvent dispatches /events/{id}/{action} paths.
func (c *Component) routeEvent(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix+"events/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "requeue" && parts[0] != "" {
			c.handleRequeue(w, r, parts[0])
			return
		}
		http.NotFound(w, r)
	}
}

// handleIngest scans a document for code links, takes an initial snapshot
// of each target, and persists the resulting references. Link failures are
// reported per link; one bad link never blocks its siblings.
func (c *Component) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	store, provider, _ := c.wired()
	if store == nil || provider == nil {
		http.Error(w, "Not ready", http.StatusServiceUnavailable)
		return
	}

	var req IngestRequest
	body := http.MaxBytesReader(w, r.Body, c.config.GetMaxDocumentBytes())
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Document == "" {
		http.Error(w, "document is required", http.StatusBadRequest)
		return
	}

	links := link.ScanDocument(req.Document)
	resp := IngestResponse{References: []reference.CodeReference{}}

	for _, l := range links {
		ref, err := c.createReference(r, l, req.Ref)
		if err != nil {
			resp.Errors = append(resp.Errors, IngestError{Link: l.OriginalText, Error: err.Error()})
			continue
		}
		resp.References = append(resp.References, ref)
	}

	c.logger.Info("Document ingested",
		"links", len(links),
		"created", len(resp.References),
		"failed", len(resp.Errors))

	writeJSON(w, http.StatusCreated, resp)
}

// createReference validates one link, snapshots its target, and persists
// the reference.
func (c *Component) createReference(r *http.Request, l link.Link, ref string) (reference.CodeReference, error) {
	store, provider, _ := c.wired()

	if err := reference.Validate(l.Type, l.StartLine, l.EndLine, l.FunctionName); err != nil {
		return reference.CodeReference{}, err
	}

	fc, err := provider.GetFileContent(r.Context(), l.Owner, l.Repo, l.FilePath, ref)
	if err != nil {
		return reference.CodeReference{}, err
	}

	rec := reference.New(l.Owner, l.Repo, l.FilePath, l.Type)
	rec.StartLine = l.StartLine
	rec.EndLine = l.EndLine
	rec.FunctionName = l.FunctionName
	rec.ClassName = l.ClassName

	switch l.Type {
	case reference.TypeLine, reference.TypeRange:
		snip, err := extract.Range(fc.Content, l.StartLine, maxInt(l.StartLine, l.EndLine))
		if err != nil {
			return reference.CodeReference{}, err
		}
		rec.Content = snip.Content
	case reference.TypeFunction:
		snip, err := extract.Function(l.FilePath, fc.Content, fc.SHA, l.ClassName, l.FunctionName)
		if err != nil {
			return reference.CodeReference{}, err
		}
		rec.Content = snip.Content
		rec.StartLine = snip.StartLine
		rec.EndLine = snip.EndLine
	}
	rec.ContentHash = extract.Hash(rec.Content)

	if err := store.CreateReference(r.Context(), rec); err != nil {
		return reference.CodeReference{}, fmt.Errorf("persist reference: %w", err)
	}
	return rec, nil
}

// handleList returns references, optionally filtered by owner and repo.
func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	store, _, _ := c.wired()
	if store == nil {
		http.Error(w, "Not ready", http.StatusServiceUnavailable)
		return
	}

	refs, err := store.ListReferences(r.Context(), r.URL.Query().Get("owner"), r.URL.Query().Get("repo"))
	if err != nil {
		c.logger.Error("List references failed", "error", err)
		http.Error(w, "List failed", http.StatusInternalServerError)
		return
	}
	if refs == nil {
		refs = []reference.CodeReference{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"references": refs})
}

// handleResolve applies an explicit resolution action to one reference.
// "reactivate" restores a deleted or conflicted reference to active; it is
// the only path back from the deleted state. "ignore" acknowledges the
// conflict and leaves the record as it stands.
func (c *Component) handleResolve(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	store, _, _ := c.wired()
	if store == nil {
		http.Error(w, "Not ready", http.StatusServiceUnavailable)
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ref, _, err := store.GetReference(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Reference not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Lookup failed", http.StatusInternalServerError)
		return
	}

	switch req.Action {
	case "reactivate":
		ref = reference.Reactivate(ref)
		if err := store.PutReference(r.Context(), ref); err != nil {
			c.logger.Error("Reactivate failed", "reference_id", id, "error", err)
			http.Error(w, "Update failed", http.StatusInternalServerError)
			return
		}
		c.logger.Info("Reference reactivated", "reference_id", id)
	case "ignore":
		// Acknowledged; no state change.
	default:
		http.Error(w, fmt.Sprintf("unknown action %q", req.Action), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, ref)
}

// handleRequeue resets a failed event to pending and republishes its id to
// the work stream. Completed events are immutable.
func (c *Component) handleRequeue(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	store, _, publisher := c.wired()
	if store == nil || publisher == nil {
		http.Error(w, "Not ready", http.StatusServiceUnavailable)
		return
	}

	ev, err := store.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Event not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Lookup failed", http.StatusInternalServerError)
		return
	}

	if ev.ProcessingStatus != reference.ProcessingFailed {
		http.Error(w, fmt.Sprintf("event is %s, only failed events can be re-queued", ev.ProcessingStatus), http.StatusConflict)
		return
	}

	ev = reference.Requeue(ev)
	if err := store.PutEvent(r.Context(), ev); err != nil {
		c.logger.Error("Requeue persist failed", "event_id", id, "error", err)
		http.Error(w, "Update failed", http.StatusInternalServerError)
		return
	}
	if err := publisher.PublishToStream(r.Context(), storage.ChangeSubject(ev.ID), []byte(ev.ID)); err != nil {
		c.logger.Error("Requeue publish failed", "event_id", id, "error", err)
		http.Error(w, "Publish failed", http.StatusInternalServerError)
		return
	}

	c.logger.Info("Event re-queued", "event_id", id)
	writeJSON(w, http.StatusOK, ev)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; nothing left to do.
		_ = err
	}
}
