package importer

import (
	"context"
	"errors"
	"sync"

	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

// ConfirmWarning is shown verbatim before a commit is allowed. The backup
// instruction matters: a replacement import is the one operation here that
// can lose data.
const ConfirmWarning = "This will replace your entire user database. " +
	"Users not in the CSV will be deactivated (except administrators). " +
	"Please download the current users first as a backup."

// State is the workflow position. Transitions:
//
//	Idle -> Parsing -> ParseErrors            (bad file, hard stop)
//	                -> PreviewReady            (diff fetched, awaiting confirm)
//	PreviewReady -> Idle                       (cancel)
//	             -> Committing -> Summary      (commit succeeded)
//	                           -> CommitFailed (commit failed; preview kept,
//	                                            confirm may be retried)
type State int

const (
	StateIdle State = iota
	StateParsing
	StateParseErrors
	StatePreviewReady
	StateCommitting
	StateSummary
	StateCommitFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StateParseErrors:
		return "parse_errors"
	case StatePreviewReady:
		return "preview_ready"
	case StateCommitting:
		return "committing"
	case StateSummary:
		return "summary"
	case StateCommitFailed:
		return "commit_failed"
	default:
		return "unknown"
	}
}

// ErrStalePreview is returned when a preview response arrives after a
// newer file selection or a cancel superseded it. The result is discarded.
var ErrStalePreview = errors.New("preview superseded by a newer request")

// ErrNotReady is returned by Confirm when there is no preview to commit.
var ErrNotReady = errors.New("no preview awaiting confirmation")

// Workflow runs the parse -> preview -> confirm -> commit sequence. It is
// safe for concurrent use; a monotonic generation counter ensures that
// when selections overlap, only the latest one's preview survives.
type Workflow struct {
	client *Client

	mu          sync.Mutex
	state       State
	gen         uint64
	fileName    string
	records     []roster.UserRecord
	parseErrors []string
	preview     *roster.ImportPreview
	summary     *roster.ImportSummary
	commitErr   error
}

// NewWorkflow creates a Workflow in the Idle state.
func NewWorkflow(client *Client) *Workflow {
	return &Workflow{client: client, state: StateIdle}
}

// SelectFile parses the file and, if it parses cleanly, requests a
// preview. On parse errors the workflow stops in StateParseErrors; the
// file must be fixed and re-selected, there is no override. A second
// SelectFile while a preview request is in flight supersedes it: the
// older call returns ErrStalePreview.
func (w *Workflow) SelectFile(ctx context.Context, name string, data []byte) error {
	w.mu.Lock()
	w.gen++
	gen := w.gen
	w.state = StateParsing
	w.fileName = name
	w.preview = nil
	w.summary = nil
	w.commitErr = nil
	w.mu.Unlock()

	result := roster.Parse(data, name)
	if !result.Ok() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.gen != gen {
			return ErrStalePreview
		}
		w.state = StateParseErrors
		w.parseErrors = result.Errors
		w.records = nil
		return nil
	}

	// Network call without the lock so a newer selection can proceed.
	preview, err := w.client.Preview(ctx, result.Data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return ErrStalePreview
	}
	if err != nil {
		w.state = StateIdle
		return err
	}

	w.state = StatePreviewReady
	w.records = result.Data
	w.parseErrors = nil
	w.preview = preview
	return nil
}

// Confirm commits the previewed import. Allowed from StatePreviewReady
// and, as a retry, from StateCommitFailed. On failure the preview is
// retained so the operator can retry or cancel.
func (w *Workflow) Confirm(ctx context.Context) (*roster.ImportSummary, error) {
	w.mu.Lock()
	if w.state != StatePreviewReady && w.state != StateCommitFailed {
		w.mu.Unlock()
		return nil, ErrNotReady
	}
	if w.preview.Blocked() {
		w.mu.Unlock()
		return nil, errors.New("preview blocked: fix validation errors and re-upload")
	}
	gen := w.gen
	records := w.records
	w.state = StateCommitting
	w.mu.Unlock()

	summary, err := w.client.Sync(ctx, records)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return nil, ErrStalePreview
	}
	if err != nil {
		w.state = StateCommitFailed
		w.commitErr = err
		return nil, err
	}

	w.state = StateSummary
	w.summary = summary
	return summary, nil
}

// Cancel abandons the current file and preview and returns to Idle. Any
// in-flight preview request is superseded. A commit in flight cannot be
// cancelled: the transaction is already with the server, and pretending
// otherwise would misreport what the database did.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateCommitting {
		return
	}
	w.gen++
	w.state = StateIdle
	w.fileName = ""
	w.records = nil
	w.parseErrors = nil
	w.preview = nil
	w.summary = nil
	w.commitErr = nil
}

// State returns the current workflow state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Preview returns the pending preview, or nil.
func (w *Workflow) Preview() *roster.ImportPreview {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.preview
}

// Summary returns the commit summary, or nil if no commit succeeded.
func (w *Workflow) Summary() *roster.ImportSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

// ParseErrors returns the row errors from the last file selection.
func (w *Workflow) ParseErrors() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.parseErrors
}

// CommitErr returns the error from the last failed commit, or nil.
func (w *Workflow) CommitErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commitErr
}

// FileName returns the name of the selected file.
func (w *Workflow) FileName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileName
}
