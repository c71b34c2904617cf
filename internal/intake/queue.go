package intake

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

type FileStatus string

const (
	FilePending   FileStatus = "pending"
	FileUploading FileStatus = "uploading"
	FileSuccess   FileStatus = "success"
	FileError     FileStatus = "error"
)

// Label is the text shown next to a queued file.
func (s FileStatus) Label() string {
	switch s {
	case FilePending:
		return "Ready to upload"
	case FileUploading:
		return "Uploading..."
	case FileSuccess:
		return "Uploaded"
	case FileError:
		return "Error"
	default:
		return ""
	}
}

// Removable reports whether the remove control is enabled. Uploading and
// uploaded entries stay put; failed ones can be dropped before a retry.
func (s FileStatus) Removable() bool {
	return s == FilePending || s == FileError
}

// Blob is the handle to a file's bytes while it waits in the queue.
type Blob interface {
	Open() (io.ReadCloser, error)
	Discard() error
}

// Candidate is a file offered to the queue.
type Candidate struct {
	Name        string
	Size        int64
	ContentType string
	Blob        Blob
}

type PendingFile struct {
	ID          uuid.UUID
	Name        string
	Size        int64
	ContentType string
	Status      FileStatus
	StoredPath  string
	blob        Blob
}

func (f *PendingFile) Blob() Blob { return f.blob }

// Rejection explains why a candidate did not enter the queue.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type FileView struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	SizeLabel   string     `json:"size_label"`
	ContentType string     `json:"content_type,omitempty"`
	Status      FileStatus `json:"status"`
	StatusLabel string     `json:"status_label"`
	Removable   bool       `json:"removable"`
}

// Queue is the ordered list of attachments. It is not safe for concurrent
// use; Session serializes access.
type Queue struct {
	items []*PendingFile
	newID func() uuid.UUID
}

func NewQueue() *Queue {
	return &Queue{newID: uuid.New}
}

func (q *Queue) Len() int { return len(q.items) }

// Add appends every acceptable candidate in order with status pending and
// reports the rest. Rejected candidates have their blobs discarded.
func (q *Queue) Add(cands []Candidate) ([]*PendingFile, []Rejection) {
	var (
		accepted []*PendingFile
		rejected []Rejection
	)
	for _, c := range cands {
		reason := ""
		switch {
		case len(q.items) >= MaxFiles:
			reason = fmt.Sprintf("You can attach up to %d files.", MaxFiles)
		case c.Size > MaxFileSize:
			reason = fmt.Sprintf("%s is over 50 MB.", c.Name)
		case !IsAllowedExtension(c.Name):
			reason = fmt.Sprintf("%s is not an accepted file type.", c.Name)
		}
		if reason != "" {
			rejected = append(rejected, Rejection{Name: c.Name, Reason: reason})
			if c.Blob != nil {
				_ = c.Blob.Discard()
			}
			continue
		}

		f := &PendingFile{
			ID:          q.newID(),
			Name:        c.Name,
			Size:        c.Size,
			ContentType: c.ContentType,
			Status:      FilePending,
			blob:        c.Blob,
		}
		q.items = append(q.items, f)
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

// Remove drops the entry with id. It returns false when no entry matched
// and ErrFileLocked when the entry is uploading or already stored.
func (q *Queue) Remove(id uuid.UUID) (bool, error) {
	for i, f := range q.items {
		if f.ID != id {
			continue
		}
		if !f.Status.Removable() {
			return false, ErrFileLocked
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		if f.blob != nil {
			_ = f.blob.Discard()
		}
		return true, nil
	}
	return false, nil
}

// SetStatus transitions the entry with id; false when absent.
func (q *Queue) SetStatus(id uuid.UUID, status FileStatus) bool {
	if f := q.find(id); f != nil {
		f.Status = status
		return true
	}
	return false
}

func (q *Queue) Get(id uuid.UUID) (PendingFile, bool) {
	if f := q.find(id); f != nil {
		return *f, true
	}
	return PendingFile{}, false
}

// Outstanding returns copies of every entry not yet stored, in order.
func (q *Queue) Outstanding() []PendingFile {
	var out []PendingFile
	for _, f := range q.items {
		if f.Status != FileSuccess {
			out = append(out, *f)
		}
	}
	return out
}

func (q *Queue) Clear() {
	for _, f := range q.items {
		if f.blob != nil {
			_ = f.blob.Discard()
		}
	}
	q.items = nil
}

func (q *Queue) View() []FileView {
	views := make([]FileView, 0, len(q.items))
	for _, f := range q.items {
		views = append(views, FileView{
			ID:          f.ID,
			Name:        f.Name,
			Size:        f.Size,
			SizeLabel:   FormatBytes(f.Size),
			ContentType: f.ContentType,
			Status:      f.Status,
			StatusLabel: f.Status.Label(),
			Removable:   f.Status.Removable(),
		})
	}
	return views
}

func (q *Queue) find(id uuid.UUID) *PendingFile {
	for _, f := range q.items {
		if f.ID == id {
			return f
		}
	}
	return nil
}
