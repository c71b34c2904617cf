package services

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WmBreck/2nd-opinion-construction/internal/config"
	"github.com/WmBreck/2nd-opinion-construction/internal/dtos"
	"github.com/WmBreck/2nd-opinion-construction/internal/models"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

func sampleLead() *models.Lead {
	return &models.Lead{
		ID:         uuid.New(),
		IdentityID: uuid.New(),
		Name:       "Jane Doe",
		Email:      "jane@example.com",
		Phone:      "864-555-0100",
		City:       utils.Ptr("Greenville"),
		Reason:     "Price check",
		Consent:    true,
		Status:     models.LeadStatusNew,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type notifyFixture struct {
	svc     NotificationService
	leads   *fakeLeads
	uploads *fakeUploads
	signer  *fakeSigner
	mailer  *fakeMailer
}

func newNotifyFixture() *notifyFixture {
	f := &notifyFixture{
		leads:   newFakeLeads(),
		uploads: &fakeUploads{},
		signer:  &fakeSigner{failFor: map[string]bool{}},
		mailer:  &fakeMailer{},
	}
	f.svc = NewNotificationService(testConfig(), f.leads, f.uploads, f.signer, f.mailer)
	return f
}

func appStatus(t *testing.T, err error) int {
	t.Helper()
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.StatusCode
}

func TestNotifyOneSigningFailureStillSends(t *testing.T) {
	f := newNotifyFixture()
	lead := sampleLead()
	f.leads.byID[lead.ID] = lead
	f.uploads.rows = []*models.Upload{
		{LeadID: lead.ID, FilePath: "u/l/1-bid.pdf", FileName: "bid.pdf", FileType: utils.Ptr("application/pdf"), FileSize: 2048},
		{LeadID: lead.ID, FilePath: "u/l/2-photo.png", FileName: "photo.png"},
	}
	f.signer.failFor["u/l/2-photo.png"] = true

	require.NoError(t, f.svc.NotifyNewLead(context.Background(), dtos.NotifyLeadRequest{LeadID: lead.ID.String()}))
	require.Len(t, f.mailer.sent, 1)

	msg := f.mailer.sent[0]
	assert.Equal(t, config.DefaultMailTo, msg.To)
	assert.Equal(t, "[2nd Opinion Lead] - Jane Doe - Greenville - Price check", msg.Subject)
	assert.Contains(t, msg.Text, "1. bid.pdf (application/pdf) [2.0 KB] -> https://files.example.com/u/l/1-bid.pdf")
	assert.Contains(t, msg.Text, "2. photo.png -> (signed URL unavailable)")
	assert.Contains(t, msg.HTML, `<a href="https://files.example.com/u/l/1-bid.pdf?X-Amz-Expires=24h0m0s&amp;sig=1">bid.pdf (application/pdf) [2.0 KB]</a>`)
	assert.Contains(t, msg.HTML, "<li>photo.png – signed URL unavailable</li>")
}

func TestNotifyFailureStatuses(t *testing.T) {
	ctx := context.Background()

	f := newNotifyFixture()
	err := f.svc.NotifyNewLead(ctx, dtos.NotifyLeadRequest{LeadID: "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, appStatus(t, err))

	err = f.svc.NotifyNewLead(ctx, dtos.NotifyLeadRequest{LeadID: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, appStatus(t, err))
	assert.ErrorIs(t, err, utils.ErrLeadNotFound)

	lead := sampleLead()
	f.leads.byID[lead.ID] = lead
	f.uploads.listErr = errBoom
	err = f.svc.NotifyNewLead(ctx, dtos.NotifyLeadRequest{LeadID: lead.ID.String()})
	assert.Equal(t, http.StatusInternalServerError, appStatus(t, err))

	f.uploads.listErr = nil
	f.mailer.err = utils.ErrExternalServiceFailure
	err = f.svc.NotifyNewLead(ctx, dtos.NotifyLeadRequest{LeadID: lead.ID.String()})
	assert.Equal(t, http.StatusBadGateway, appStatus(t, err))
}

func TestComposeLeadEmail(t *testing.T) {
	lead := sampleLead()
	lead.Name = " "
	lead.City = nil
	lead.Notes = utils.Ptr(`<script>alert("x")</script>`)

	email := ComposeLeadEmail("2nd Opinion", lead, nil)
	assert.Equal(t, "[2nd Opinion Lead] - Unknown - Price check", email.Subject)

	wantText := strings.Join([]string{
		"Name:  ",
		"Email: jane@example.com",
		"Phone: 864-555-0100",
		"City: -",
		"ZIP: -",
		"Reason: Price check",
		"Project Type: -",
		"Budget Range: -",
		"Status: new",
		`Notes: <script>alert("x")</script>`,
		"Consent: true",
		"Submitted: 2026-03-01T12:00:00Z",
		"",
		"Files:",
		"No files uploaded.",
		"",
	}, "\n")
	assert.Equal(t, wantText, email.Text)

	assert.True(t, strings.HasPrefix(email.HTML, "<!doctype html>"))
	assert.Contains(t, email.HTML, "<p>A new lead just arrived via 2nd Opinion Construction.</p>")
	assert.Contains(t, email.HTML, "<li>Notes: &lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;</li>")
	assert.Contains(t, email.HTML, "<h3>Files</h3>\n    <ul><li>No files uploaded.</li></ul>")
	assert.NotContains(t, email.HTML, "<script>")
}
