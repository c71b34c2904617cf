package intake

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Step string

const (
	StepContact Step = "contact"
	StepOTP     Step = "otp"
	StepUpload  Step = "upload"
	StepSuccess Step = "success"
)

type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
)

// Status messages shown under the active step's form.
const (
	MsgCodeSent          = "Verification code sent. Check your inbox (and spam)."
	MsgCodeResent        = "New code sent. It may take a minute to arrive."
	MsgCodeSendFailed    = "Unable to send verification code."
	MsgCodeResendFailed  = "Unable to resend code."
	MsgCodeShape         = "Verification code must be six digits."
	MsgCodeFieldShape    = "Enter the six-digit code."
	MsgCodeRejected      = "Invalid or expired code."
	MsgVerifyFailed      = "Unable to verify code. Please try again."
	MsgTooManyRequests   = "Too many code requests. Please try again later."
	MsgLeadSaveFailed    = "Unable to save your details. Please try again."
	MsgVerifyAgain       = "Please verify your email again."
	MsgNoFiles           = "Add at least one file before submitting."
	MsgAttachAfterVerify = "Verify your email before attaching files."
	MsgUploadIncomplete  = "Some files could not be uploaded. Fix the errors and try again."
	MsgUploadComplete    = "Files uploaded. Thanks for sharing your plans."
	MsgNotifyFailed      = "Files uploaded, but we could not send the notification automatically. We will follow up shortly."
)

type StatusLine struct {
	Message string `json:"message"`
	Tone    Tone   `json:"tone"`
}

// Identity is the verified owner of everything created after the code step.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Options selects between the flow variants the site has shipped.
type Options struct {
	// EagerLeadCreation saves the lead as part of code verification;
	// otherwise it is saved when the first upload batch starts.
	EagerLeadCreation bool
	// AllowEarlyAttachments lets files be queued before verification.
	AllowEarlyAttachments bool
	ResendCooldown        time.Duration
}

func DefaultOptions() Options {
	return Options{EagerLeadCreation: true, ResendCooldown: ResendCooldown}
}

// UploadPlan is what the pipeline needs to run one upload batch.
type UploadPlan struct {
	Identity Identity
	Contact  ContactPayload
	LeadID   *uuid.UUID
	Files    []PendingFile
}

// View is the render projection of a session.
type View struct {
	SessionID         uuid.UUID   `json:"session_id"`
	Step              Step        `json:"step"`
	Email             string      `json:"email,omitempty"`
	LeadID            *uuid.UUID  `json:"lead_id,omitempty"`
	Files             []FileView  `json:"files"`
	CanAttach         bool        `json:"can_attach"`
	ResendAvailableIn int         `json:"resend_available_in"`
	Status            *StatusLine `json:"status,omitempty"`
	FieldErrors       FieldErrors `json:"field_errors,omitempty"`
	Rejections        []Rejection `json:"rejections,omitempty"`
}

// Session is one pass through the intake modal: contact, otp, upload,
// success. Methods are safe for concurrent use; TryAcquire/Release keep a
// second step from starting while one is still talking to the network.
type Session struct {
	ID   uuid.UUID
	opts Options

	flight sync.Mutex
	mu     sync.RWMutex

	step           Step
	contact        *ContactPayload
	identity       *Identity
	leadID         *uuid.UUID
	lastCodeSentAt time.Time
	queue          *Queue
	status         *StatusLine
	fieldErrors    FieldErrors
	rejections     []Rejection
	touchedAt      time.Time
	resetPending   bool
}

func NewSession(id uuid.UUID, opts Options, now time.Time) *Session {
	if opts.ResendCooldown <= 0 {
		opts.ResendCooldown = ResendCooldown
	}
	return &Session{
		ID:        id,
		opts:      opts,
		step:      StepContact,
		queue:     NewQueue(),
		touchedAt: now,
	}
}

func (s *Session) TryAcquire() bool { return s.flight.TryLock() }

// Release ends the step in flight, applying a reset requested meanwhile.
func (s *Session) Release() {
	s.mu.Lock()
	pending := s.resetPending
	s.resetPending = false
	s.mu.Unlock()
	if pending {
		s.Reset()
	}
	s.flight.Unlock()
}

// ResetWhenIdle resets now when no step is in flight, otherwise as soon as
// the running step releases the session. It never blocks.
func (s *Session) ResetWhenIdle() {
	s.mu.Lock()
	s.resetPending = true
	s.mu.Unlock()
	if s.TryAcquire() {
		s.Release()
	}
}

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.touchedAt = now
	s.mu.Unlock()
}

func (s *Session) TouchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.touchedAt
}

func (s *Session) Step() Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

func (s *Session) Options() Options { return s.opts }

func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

func (s *Session) LeadID() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.leadID == nil {
		return uuid.Nil, false
	}
	return *s.leadID, true
}

// ---------------------------------------------------------------------
// contact -> otp
// ---------------------------------------------------------------------

// PrepareContact normalizes and validates p. The session only moves on
// once CodeSent is called.
func (s *Session) PrepareContact(p ContactPayload) (ContactPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStatusLocked()

	if s.step != StepContact {
		return ContactPayload{}, stateError("Contact details were already submitted.")
	}

	n := p.Normalize()
	if errs := n.Validate(); errs != nil {
		s.fieldErrors = errs
		s.status = &StatusLine{Message: MsgFixFields, Tone: ToneError}
		return n, &StepError{Kind: KindValidation, Message: MsgFixFields, Fields: errs}
	}
	return n, nil
}

func (s *Session) CodeSent(p ContactPayload, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contact = &p
	s.lastCodeSentAt = now
	s.step = StepOTP
	s.status = &StatusLine{Message: MsgCodeSent, Tone: ToneSuccess}
}

// Fail records a user-facing error without moving the session and returns
// it as a StepError.
func (s *Session) Fail(kind ErrorKind, msg string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = &StatusLine{Message: msg, Tone: ToneError}
	return &StepError{Kind: kind, Message: msg, Err: cause}
}

// RejectFields records field errors found after local validation passed,
// such as an address that does not accept mail.
func (s *Session) RejectFields(errs FieldErrors) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldErrors = errs
	s.status = &StatusLine{Message: MsgFixFields, Tone: ToneError}
	return &StepError{Kind: KindValidation, Message: MsgFixFields, Fields: errs}
}

// ---------------------------------------------------------------------
// otp -> otp (resend)
// ---------------------------------------------------------------------

// PrepareResend returns the address to resend to, or a cooldown error
// carrying the whole seconds left when called too early.
func (s *Session) PrepareResend(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStatusLocked()

	if s.step != StepOTP || s.contact == nil {
		return "", stateError("There is no code to resend.")
	}
	if wait := s.resendWaitLocked(now); wait > 0 {
		msg := fmt.Sprintf("Please wait %d seconds before requesting another code.", wait)
		s.status = &StatusLine{Message: msg, Tone: ToneError}
		return "", &StepError{Kind: KindCooldown, Message: msg, RetryAfter: wait}
	}
	return s.contact.Email, nil
}

func (s *Session) CodeResent(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCodeSentAt = now
	s.status = &StatusLine{Message: MsgCodeResent, Tone: ToneSuccess}
}

func (s *Session) resendWaitLocked(now time.Time) int {
	remaining := s.opts.ResendCooldown - now.Sub(s.lastCodeSentAt)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}

// ---------------------------------------------------------------------
// otp -> upload
// ---------------------------------------------------------------------

// PrepareVerify checks the code's shape. needsCheck is false when the
// identity was already verified on an earlier submit whose lead save
// failed; only the save is retried then.
func (s *Session) PrepareVerify(code string) (contact ContactPayload, needsCheck bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStatusLocked()

	if s.step != StepOTP || s.contact == nil {
		return ContactPayload{}, false, stateError("Contact details missing. Please start again.")
	}
	if s.identity != nil {
		return *s.contact, false, nil
	}
	if !IsValidCode(strings.TrimSpace(code)) {
		s.fieldErrors = FieldErrors{"otp": MsgCodeFieldShape}
		s.status = &StatusLine{Message: MsgCodeShape, Tone: ToneError}
		return ContactPayload{}, false, &StepError{
			Kind:    KindValidation,
			Message: MsgCodeShape,
			Fields:  s.fieldErrors,
		}
	}
	return *s.contact, true, nil
}

func (s *Session) Verified(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &id
}

// LeadCreated records the saved lead. From otp it also opens the upload step.
func (s *Session) LeadCreated(leadID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadID = &leadID
	if s.step == StepOTP {
		s.step = StepUpload
		s.clearStatusLocked()
	}
}

// EnterUpload opens the upload step without a lead (deferred creation).
func (s *Session) EnterUpload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step == StepOTP && s.identity != nil {
		s.step = StepUpload
		s.clearStatusLocked()
	}
}

// ---------------------------------------------------------------------
// queue
// ---------------------------------------------------------------------

func (s *Session) canAttachLocked() bool {
	switch s.step {
	case StepUpload:
		return true
	case StepContact, StepOTP:
		return s.opts.AllowEarlyAttachments
	}
	return false
}

func (s *Session) AddFiles(cands []Candidate) ([]Rejection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStatusLocked()

	if !s.canAttachLocked() {
		for _, c := range cands {
			if c.Blob != nil {
				_ = c.Blob.Discard()
			}
		}
		s.status = &StatusLine{Message: MsgAttachAfterVerify, Tone: ToneError}
		return nil, stateError(MsgAttachAfterVerify)
	}

	_, rejected := s.queue.Add(cands)
	if len(rejected) > 0 {
		reasons := make([]string, 0, len(rejected))
		for _, r := range rejected {
			reasons = append(reasons, r.Reason)
		}
		s.rejections = rejected
		s.status = &StatusLine{Message: strings.Join(reasons, " "), Tone: ToneError}
	}
	return rejected, nil
}

func (s *Session) RemoveFile(id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Remove(id)
}

func (s *Session) SetFileStatus(id uuid.UUID, status FileStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetStatus(id, status)
}

// FileStored marks an entry uploaded and releases its staged bytes.
func (s *Session) FileStored(id uuid.UUID, storedPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.queue.find(id); f != nil {
		f.Status = FileSuccess
		f.StoredPath = storedPath
		if f.blob != nil {
			_ = f.blob.Discard()
		}
	}
}

// FileUnrecorded marks an entry failed after its bytes reached storage but
// its record did not. The path is kept so a retry only writes the record.
func (s *Session) FileUnrecorded(id uuid.UUID, storedPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.queue.find(id); f != nil {
		f.Status = FileError
		f.StoredPath = storedPath
		if f.blob != nil {
			_ = f.blob.Discard()
			f.blob = nil
		}
	}
}

// ---------------------------------------------------------------------
// upload -> success
// ---------------------------------------------------------------------

func (s *Session) PrepareUpload() (UploadPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStatusLocked()

	if s.step != StepUpload || s.identity == nil || s.contact == nil {
		s.status = &StatusLine{Message: MsgVerifyAgain, Tone: ToneError}
		return UploadPlan{}, stateError(MsgVerifyAgain)
	}
	if s.queue.Len() == 0 {
		s.status = &StatusLine{Message: MsgNoFiles, Tone: ToneError}
		return UploadPlan{}, &StepError{Kind: KindValidation, Message: MsgNoFiles}
	}

	plan := UploadPlan{
		Identity: *s.identity,
		Contact:  *s.contact,
		Files:    s.queue.Outstanding(),
	}
	if s.leadID != nil {
		id := *s.leadID
		plan.LeadID = &id
	}
	return plan, nil
}

// UploadIncomplete keeps the session in upload after a batch with failures.
func (s *Session) UploadIncomplete(failed []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = &StatusLine{Message: MsgUploadIncomplete, Tone: ToneError}
	return &StepError{
		Kind:    KindStorage,
		Message: MsgUploadIncomplete,
		Fields:  FieldErrors{"files": strings.Join(failed, ", ")},
	}
}

// Complete enters the terminal step. A failed notification still
// completes, with a message saying someone will follow up.
func (s *Session) Complete(notified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepSuccess
	if notified {
		s.status = &StatusLine{Message: MsgUploadComplete, Tone: ToneSuccess}
	} else {
		s.status = &StatusLine{Message: MsgNotifyFailed, Tone: ToneError}
	}
}

// ---------------------------------------------------------------------
// reset / projection
// ---------------------------------------------------------------------

// Reset returns to an empty contact step and discards staged files.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepContact
	s.contact = nil
	s.identity = nil
	s.leadID = nil
	s.lastCodeSentAt = time.Time{}
	s.queue.Clear()
	s.clearStatusLocked()
}

// View projects the session for the client. A session waiting on a
// deferred reset already shows the empty contact step.
func (s *Session) View(now time.Time) View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.resetPending {
		return NewSession(s.ID, s.opts, now).View(now)
	}

	v := View{
		SessionID:   s.ID,
		Step:        s.step,
		Files:       s.queue.View(),
		CanAttach:   s.canAttachLocked(),
		Status:      s.status,
		FieldErrors: s.fieldErrors,
		Rejections:  s.rejections,
	}
	if s.contact != nil {
		v.Email = s.contact.Email
	}
	if s.leadID != nil {
		id := *s.leadID
		v.LeadID = &id
	}
	if s.step == StepOTP {
		v.ResendAvailableIn = s.resendWaitLocked(now)
	}
	return v
}

func (s *Session) clearStatusLocked() {
	s.status = nil
	s.fieldErrors = nil
	s.rejections = nil
}
