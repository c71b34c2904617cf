package intake

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validContact() ContactPayload {
	return ContactPayload{
		Name:    "Jane Doe",
		Email:   "Jane@Example.com ",
		Phone:   "864-555-0100",
		Reason:  "Second opinion on a bid",
		Consent: true,
	}
}

// toUpload drives a new session through contact and otp with a lead.
func toUpload(t *testing.T, opts Options) *Session {
	t.Helper()
	s := NewSession(uuid.New(), opts, t0)
	p, err := s.PrepareContact(validContact())
	require.NoError(t, err)
	s.CodeSent(p, t0)

	_, needsCheck, err := s.PrepareVerify("123456")
	require.NoError(t, err)
	require.True(t, needsCheck)
	s.Verified(Identity{ID: uuid.New(), Email: p.Email})
	s.LeadCreated(uuid.New())
	require.Equal(t, StepUpload, s.Step())
	return s
}

func TestContactValidationKeepsStep(t *testing.T) {
	s := NewSession(uuid.New(), DefaultOptions(), t0)

	_, err := s.PrepareContact(ContactPayload{Name: "Jane"})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	v := s.View(t0)
	assert.Equal(t, StepContact, v.Step)
	require.NotNil(t, v.Status)
	assert.Equal(t, MsgFixFields, v.Status.Message)
	assert.Contains(t, v.FieldErrors, "email")
	assert.NotContains(t, v.FieldErrors, "name")
}

func TestContactToOTP(t *testing.T) {
	s := NewSession(uuid.New(), DefaultOptions(), t0)
	p, err := s.PrepareContact(validContact())
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", p.Email)
	assert.Equal(t, StepContact, s.Step(), "step moves only once the code is sent")

	s.CodeSent(p, t0)
	v := s.View(t0)
	assert.Equal(t, StepOTP, v.Step)
	assert.Equal(t, "jane@example.com", v.Email)
	assert.Equal(t, MsgCodeSent, v.Status.Message)
	assert.Equal(t, 45, v.ResendAvailableIn)

	_, err = s.PrepareContact(validContact())
	assert.Equal(t, KindState, KindOf(err))
}

func TestResendCooldown(t *testing.T) {
	s := NewSession(uuid.New(), DefaultOptions(), t0)
	p, _ := s.PrepareContact(validContact())
	s.CodeSent(p, t0)

	_, err := s.PrepareResend(t0.Add(44999 * time.Millisecond))
	require.Error(t, err)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindCooldown, se.Kind)
	assert.Equal(t, 1, se.RetryAfter)

	_, err = s.PrepareResend(t0.Add(10 * time.Second))
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 35, se.RetryAfter)
	assert.Equal(t, "Please wait 35 seconds before requesting another code.", se.Message)

	email, err := s.PrepareResend(t0.Add(45 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", email)

	s.CodeResent(t0.Add(45 * time.Second))
	_, err = s.PrepareResend(t0.Add(46 * time.Second))
	assert.Equal(t, KindCooldown, KindOf(err))
}

func TestVerifyRejectsMalformedCode(t *testing.T) {
	s := NewSession(uuid.New(), DefaultOptions(), t0)
	p, _ := s.PrepareContact(validContact())
	s.CodeSent(p, t0)

	for _, code := range []string{"12345", "abcdef", "1234567", ""} {
		_, needsCheck, err := s.PrepareVerify(code)
		assert.False(t, needsCheck)
		assert.Equal(t, KindValidation, KindOf(err), code)
	}
	assert.Equal(t, MsgCodeFieldShape, s.View(t0).FieldErrors["otp"])
	assert.Equal(t, StepOTP, s.Step())
}

func TestVerifiedButUnsavedRetriesOnlySave(t *testing.T) {
	s := NewSession(uuid.New(), DefaultOptions(), t0)
	p, _ := s.PrepareContact(validContact())
	s.CodeSent(p, t0)

	_, needsCheck, err := s.PrepareVerify("123456")
	require.NoError(t, err)
	require.True(t, needsCheck)
	s.Verified(Identity{ID: uuid.New(), Email: p.Email})

	err = s.Fail(KindPersistence, MsgLeadSaveFailed, assert.AnError)
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Equal(t, StepOTP, s.Step())

	contact, needsCheck, err := s.PrepareVerify("")
	require.NoError(t, err)
	assert.False(t, needsCheck)
	assert.Equal(t, p, contact)

	lead := uuid.New()
	s.LeadCreated(lead)
	got, ok := s.LeadID()
	require.True(t, ok)
	assert.Equal(t, lead, got)
	assert.Equal(t, StepUpload, s.Step())
}

func TestAttachmentsGatedByStep(t *testing.T) {
	s := NewSession(uuid.New(), DefaultOptions(), t0)
	blob := &memBlob{}
	_, err := s.AddFiles([]Candidate{{Name: "a.pdf", Size: 1, Blob: blob}})
	assert.Equal(t, KindState, KindOf(err))
	assert.True(t, blob.discarded)
	assert.False(t, s.View(t0).CanAttach)

	early := NewSession(uuid.New(), Options{AllowEarlyAttachments: true, EagerLeadCreation: true}, t0)
	rejected, err := early.AddFiles([]Candidate{candidate("a.pdf", 1)})
	require.NoError(t, err)
	assert.Empty(t, rejected)
	assert.Len(t, early.View(t0).Files, 1)
}

func TestUploadRequiresFiles(t *testing.T) {
	s := toUpload(t, DefaultOptions())
	_, err := s.PrepareUpload()
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, MsgNoFiles, s.View(t0).Status.Message)
}

func TestPartialUploadStaysAndRetriesOutstanding(t *testing.T) {
	s := toUpload(t, DefaultOptions())
	_, err := s.AddFiles([]Candidate{candidate("1.pdf", 1), candidate("2.pdf", 1), candidate("3.pdf", 1)})
	require.NoError(t, err)

	plan, err := s.PrepareUpload()
	require.NoError(t, err)
	require.Len(t, plan.Files, 3)
	require.NotNil(t, plan.LeadID)

	s.FileStored(plan.Files[0].ID, "u/l/1.pdf")
	s.SetFileStatus(plan.Files[1].ID, FileError)
	s.FileStored(plan.Files[2].ID, "u/l/3.pdf")
	err = s.UploadIncomplete([]string{"2.pdf"})
	assert.Equal(t, KindStorage, KindOf(err))

	v := s.View(t0)
	assert.Equal(t, StepUpload, v.Step)
	assert.Equal(t, FileSuccess, v.Files[0].Status)
	assert.Equal(t, FileError, v.Files[1].Status)
	assert.Equal(t, FileSuccess, v.Files[2].Status)
	assert.Equal(t, MsgUploadIncomplete, v.Status.Message)

	retry, err := s.PrepareUpload()
	require.NoError(t, err)
	require.Len(t, retry.Files, 1)
	assert.Equal(t, "2.pdf", retry.Files[0].Name)

	s.FileStored(retry.Files[0].ID, "u/l/2.pdf")
	s.Complete(false)
	v = s.View(t0)
	assert.Equal(t, StepSuccess, v.Step)
	assert.Equal(t, MsgNotifyFailed, v.Status.Message)
}

func TestDeferredLeadCreation(t *testing.T) {
	s := NewSession(uuid.New(), Options{EagerLeadCreation: false}, t0)
	p, _ := s.PrepareContact(validContact())
	s.CodeSent(p, t0)
	_, _, err := s.PrepareVerify("123456")
	require.NoError(t, err)
	s.Verified(Identity{ID: uuid.New(), Email: p.Email})
	s.EnterUpload()
	require.Equal(t, StepUpload, s.Step())

	_, err = s.AddFiles([]Candidate{candidate("a.pdf", 1)})
	require.NoError(t, err)
	plan, err := s.PrepareUpload()
	require.NoError(t, err)
	assert.Nil(t, plan.LeadID)
	assert.Equal(t, "jane@example.com", plan.Contact.Email)
}

func TestResetClearsEverything(t *testing.T) {
	s := toUpload(t, DefaultOptions())
	c := candidate("a.pdf", 1)
	_, err := s.AddFiles([]Candidate{c})
	require.NoError(t, err)

	s.Reset()
	v := s.View(t0)
	assert.Equal(t, StepContact, v.Step)
	assert.Empty(t, v.Files)
	assert.Empty(t, v.Email)
	assert.Nil(t, v.LeadID)
	assert.Nil(t, v.Status)
	assert.True(t, c.Blob.(*memBlob).discarded)
	_, ok := s.LeadID()
	assert.False(t, ok)
}

func TestSingleFlight(t *testing.T) {
	s := NewSession(uuid.New(), DefaultOptions(), t0)
	require.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire())
	s.Release()
	assert.True(t, s.TryAcquire())
	s.Release()
}

func TestResetWhenIdleWaitsForStepInFlight(t *testing.T) {
	s := toUpload(t, DefaultOptions())
	c := candidate("a.pdf", 1)
	_, err := s.AddFiles([]Candidate{c})
	require.NoError(t, err)

	require.True(t, s.TryAcquire())
	s.ResetWhenIdle()

	v := s.View(t0)
	assert.Equal(t, StepContact, v.Step)
	assert.Empty(t, v.Files)
	assert.Nil(t, v.LeadID)
	assert.Equal(t, StepUpload, s.Step(), "state is left alone until the step returns")
	assert.False(t, c.Blob.(*memBlob).discarded)

	s.Release()
	assert.Equal(t, StepContact, s.Step())
	assert.True(t, c.Blob.(*memBlob).discarded)
	assert.True(t, s.TryAcquire(), "release still frees the flight lock")
	s.Release()
}

func TestResetWhenIdleResetsAtOnce(t *testing.T) {
	s := toUpload(t, DefaultOptions())
	s.ResetWhenIdle()
	assert.Equal(t, StepContact, s.Step())
	assert.True(t, s.TryAcquire())
	s.Release()
}

func TestFileUnrecordedKeepsStoredPath(t *testing.T) {
	s := toUpload(t, DefaultOptions())
	c := candidate("a.pdf", 1)
	_, err := s.AddFiles([]Candidate{c})
	require.NoError(t, err)
	plan, err := s.PrepareUpload()
	require.NoError(t, err)
	id := plan.Files[0].ID

	s.FileUnrecorded(id, "idn/lead/a.pdf")
	assert.True(t, c.Blob.(*memBlob).discarded)

	plan, err = s.PrepareUpload()
	require.NoError(t, err)
	require.Len(t, plan.Files, 1)
	assert.Equal(t, FileError, plan.Files[0].Status)
	assert.Equal(t, "idn/lead/a.pdf", plan.Files[0].StoredPath)
	assert.Nil(t, plan.Files[0].Blob())
}
