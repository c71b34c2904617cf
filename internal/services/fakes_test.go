package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WmBreck/2nd-opinion-construction/internal/config"
	"github.com/WmBreck/2nd-opinion-construction/internal/dtos"
	"github.com/WmBreck/2nd-opinion-construction/internal/intake"
	"github.com/WmBreck/2nd-opinion-construction/internal/models"
	"github.com/WmBreck/2nd-opinion-construction/internal/repositories"
)

var errBoom = errors.New("boom")

func testConfig() *config.Config {
	return &config.Config{
		OrganizationName:          "2nd Opinion Construction",
		MailFrom:                  config.DefaultMailFrom,
		MailTo:                    config.DefaultMailTo,
		BusinessName:              config.DefaultBusinessName,
		VerificationCodeLength:    6,
		VerificationCodeExpiry:    10 * time.Minute,
		ResendCooldown:            45 * time.Second,
		SessionTTL:                2 * time.Hour,
		SignedURLTTL:              24 * time.Hour,
		EmailLimitPerIPPerHour:    20,
		EmailLimitPerEmailPerHour: 5,
		GlobalEmailLimitPerHour:   500,
		RateLimitWindow:           time.Hour,
		LDFlag_EagerLeadCreation:  true,
		LDFlag_AcceptTestEmails:   true,
	}
}

// ---------------------------------------------------------------------
// repositories
// ---------------------------------------------------------------------

type fakeCodes struct {
	byEmail   map[string]*models.EmailVerificationCode
	getErr    error
	deleteErr error
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{byEmail: map[string]*models.EmailVerificationCode{}}
}

func (f *fakeCodes) CreateCode(_ context.Context, email, code string, expiresAt time.Time) error {
	f.byEmail[email] = &models.EmailVerificationCode{ID: uuid.New(), Email: email, VerificationCode: code, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeCodes) GetCode(_ context.Context, email string) (*models.EmailVerificationCode, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.byEmail[email], nil
}

func (f *fakeCodes) find(id uuid.UUID) *models.EmailVerificationCode {
	for _, c := range f.byEmail {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (f *fakeCodes) DeleteCode(_ context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if c := f.find(id); c != nil {
		delete(f.byEmail, c.Email)
	}
	return nil
}

func (f *fakeCodes) IncrementAttempts(_ context.Context, id uuid.UUID) error {
	if c := f.find(id); c != nil {
		c.Attempts++
	}
	return nil
}

func (f *fakeCodes) MarkVerified(_ context.Context, id uuid.UUID) error {
	if c := f.find(id); c != nil {
		c.Verified = true
	}
	return nil
}

func (f *fakeCodes) CleanupExpired(context.Context) error { return nil }

type fakeIdentities struct {
	byEmail   map[string]*models.Identity
	createErr error
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{byEmail: map[string]*models.Identity{}}
}

func (f *fakeIdentities) Create(_ context.Context, i *models.Identity) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[i.Email]; ok {
		return repositories.ErrIdentityExists
	}
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	f.byEmail[i.Email] = i
	return nil
}

func (f *fakeIdentities) GetByEmail(_ context.Context, email string) (*models.Identity, error) {
	return f.byEmail[email], nil
}

func (f *fakeIdentities) MarkVerified(context.Context, uuid.UUID) error { return nil }

type fakeRateLimits struct {
	counts   map[string]int
	cleaned  int
	cleanErr error
}

func newFakeRateLimits() *fakeRateLimits {
	return &fakeRateLimits{counts: map[string]int{}}
}

func (f *fakeRateLimits) IncrementAndCheck(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	f.counts[key]++
	return f.counts[key] <= limit, nil
}

func (f *fakeRateLimits) CleanupExpired(context.Context) error {
	f.cleaned++
	return f.cleanErr
}

type fakeLeads struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*models.Lead
	createErr error
	getErr    error
}

func newFakeLeads() *fakeLeads {
	return &fakeLeads{byID: map[uuid.UUID]*models.Lead{}}
}

func (f *fakeLeads) Create(_ context.Context, l *models.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.byID[l.ID] = l
	return nil
}

func (f *fakeLeads) GetByID(_ context.Context, id uuid.UUID) (*models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.byID[id], nil
}

type fakeUploads struct {
	mu          sync.Mutex
	rows        []*models.Upload
	listErr     error
	failCreates int
}

func (f *fakeUploads) Create(_ context.Context, u *models.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates > 0 {
		f.failCreates--
		return errBoom
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.rows = append(f.rows, u)
	return nil
}

func (f *fakeUploads) ListByLeadID(_ context.Context, leadID uuid.UUID) ([]*models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Upload
	for _, u := range f.rows {
		if u.LeadID == leadID {
			out = append(out, u)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------
// external services
// ---------------------------------------------------------------------

type fakeMailer struct {
	sent []Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// fakeStore fails any object whose path ends with a name in failFor.
type fakeStore struct {
	objects map[string]string
	failFor map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]string{}, failFor: map[string]bool{}}
}

func (f *fakeStore) Upload(_ context.Context, objectPath string, r io.Reader, _ int64, _ string) (string, error) {
	for name := range f.failFor {
		if strings.HasSuffix(objectPath, name) {
			return "", errBoom
		}
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[objectPath] = string(b)
	return objectPath, nil
}

// blockingStore parks every Upload until release is closed, then defers
// to the wrapped fakeStore.
type blockingStore struct {
	*fakeStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStore(inner *fakeStore) *blockingStore {
	return &blockingStore{fakeStore: inner, started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingStore) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakeStore.Upload(ctx, objectPath, r, size, contentType)
}

type fakeSigner struct {
	failFor map[string]bool
}

func (f *fakeSigner) SignDownloadURL(_ context.Context, objectPath string, ttl time.Duration) (string, error) {
	if f.failFor[objectPath] {
		return "", errBoom
	}
	return "https://files.example.com/" + objectPath + "?X-Amz-Expires=" + ttl.String() + "&sig=1", nil
}

type fakeVerifier struct {
	requested   []string
	requestErr  error
	verifyErr   error
	verifyCalls int
	identity    intake.Identity
}

func (f *fakeVerifier) RequestCode(_ context.Context, email, _ string, _ bool) error {
	if f.requestErr != nil {
		return f.requestErr
	}
	f.requested = append(f.requested, email)
	return nil
}

func (f *fakeVerifier) VerifyCode(_ context.Context, email, _ string, _ bool) (*intake.Identity, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	id := f.identity
	if id.ID == uuid.Nil {
		id = intake.Identity{ID: uuid.New(), Email: email}
		f.identity = id
	}
	return &id, nil
}

type fakeNotifier struct {
	calls []dtos.NotifyLeadRequest
	err   error
}

func (f *fakeNotifier) NotifyNewLead(_ context.Context, req dtos.NotifyLeadRequest) error {
	f.calls = append(f.calls, req)
	return f.err
}

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

func candidate(name string) intake.Candidate {
	return intake.Candidate{Name: name, Size: int64(len(name)), ContentType: "application/pdf", Blob: &memBlob{data: name}}
}
