package intake

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBlob struct {
	data      string
	discarded bool
}

func (b *memBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(b.data)), nil
}

func (b *memBlob) Discard() error {
	b.discarded = true
	return nil
}

func candidate(name string, size int64) Candidate {
	return Candidate{Name: name, Size: size, ContentType: "application/pdf", Blob: &memBlob{data: name}}
}

func TestQueueAddEnforcesLimits(t *testing.T) {
	q := NewQueue()

	big := candidate("huge.pdf", MaxFileSize+1)
	exe := candidate("setup.exe", 10)
	accepted, rejected := q.Add([]Candidate{
		candidate("a.pdf", 10),
		big,
		exe,
		candidate("b.PNG", MaxFileSize),
	})

	require.Len(t, accepted, 2)
	assert.Equal(t, "a.pdf", accepted[0].Name)
	assert.Equal(t, "b.PNG", accepted[1].Name)
	assert.Equal(t, FilePending, accepted[1].Status)

	require.Len(t, rejected, 2)
	assert.Equal(t, "huge.pdf is over 50 MB.", rejected[0].Reason)
	assert.Equal(t, "setup.exe is not an accepted file type.", rejected[1].Reason)
	assert.True(t, big.Blob.(*memBlob).discarded)
	assert.True(t, exe.Blob.(*memBlob).discarded)
}

func TestQueueNeverExceedsCapacity(t *testing.T) {
	q := NewQueue()
	var batch []Candidate
	for i := 0; i < MaxFiles+3; i++ {
		batch = append(batch, candidate("same.pdf", 1))
	}

	accepted, rejected := q.Add(batch)
	assert.Len(t, accepted, MaxFiles)
	assert.Len(t, rejected, 3)
	assert.Equal(t, "You can attach up to 5 files.", rejected[0].Reason)
	assert.Equal(t, MaxFiles, q.Len())

	_, rejected = q.Add([]Candidate{candidate("late.pdf", 1)})
	assert.Len(t, rejected, 1)
	assert.Equal(t, MaxFiles, q.Len())

	// duplicate names stay distinct entries
	ids := map[string]bool{}
	for _, f := range q.View() {
		ids[f.ID.String()] = true
	}
	assert.Len(t, ids, MaxFiles)
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue()
	accepted, _ := q.Add([]Candidate{candidate("a.pdf", 1), candidate("b.pdf", 1), candidate("c.pdf", 1)})
	middle := accepted[1]

	removed, err := q.Remove(middle.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, middle.Blob().(*memBlob).discarded)

	views := q.View()
	require.Len(t, views, 2)
	assert.Equal(t, "a.pdf", views[0].Name)
	assert.Equal(t, "c.pdf", views[1].Name)

	removed, err = q.Remove(middle.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	q.SetStatus(accepted[0].ID, FileUploading)
	_, err = q.Remove(accepted[0].ID)
	assert.ErrorIs(t, err, ErrFileLocked)

	q.SetStatus(accepted[2].ID, FileError)
	removed, err = q.Remove(accepted[2].ID)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestQueueRemoveThenAddStartsPending(t *testing.T) {
	q := NewQueue()
	accepted, _ := q.Add([]Candidate{candidate("a.pdf", 1)})
	q.SetStatus(accepted[0].ID, FileError)
	_, err := q.Remove(accepted[0].ID)
	require.NoError(t, err)

	again, _ := q.Add([]Candidate{candidate("a.pdf", 1)})
	require.Len(t, again, 1)
	assert.NotEqual(t, accepted[0].ID, again[0].ID)
	assert.Equal(t, FilePending, again[0].Status)
}

func TestQueueViewLabels(t *testing.T) {
	q := NewQueue()
	accepted, _ := q.Add([]Candidate{
		candidate("a.pdf", 2048),
		candidate("b.pdf", 1),
		candidate("c.pdf", 1),
		candidate("d.pdf", 1),
	})
	q.SetStatus(accepted[1].ID, FileUploading)
	q.SetStatus(accepted[2].ID, FileSuccess)
	q.SetStatus(accepted[3].ID, FileError)

	views := q.View()
	assert.Equal(t, "Ready to upload", views[0].StatusLabel)
	assert.Equal(t, "2.0 KB", views[0].SizeLabel)
	assert.True(t, views[0].Removable)
	assert.Equal(t, "Uploading...", views[1].StatusLabel)
	assert.False(t, views[1].Removable)
	assert.Equal(t, "Uploaded", views[2].StatusLabel)
	assert.False(t, views[2].Removable)
	assert.Equal(t, "Error", views[3].StatusLabel)
	assert.True(t, views[3].Removable)

	outstanding := q.Outstanding()
	require.Len(t, outstanding, 3)
	assert.Equal(t, "d.pdf", outstanding[2].Name)
}

func TestQueueClearDiscardsBlobs(t *testing.T) {
	q := NewQueue()
	accepted, _ := q.Add([]Candidate{candidate("a.pdf", 1), candidate("b.pdf", 1)})
	q.Clear()
	assert.Equal(t, 0, q.Len())
	for _, f := range accepted {
		assert.True(t, f.Blob().(*memBlob).discarded)
	}
}
