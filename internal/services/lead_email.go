package services

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/WmBreck/2nd-opinion-construction/internal/intake"
	"github.com/WmBreck/2nd-opinion-construction/internal/models"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

const (
	noFilesLine        = "No files uploaded."
	linkUnavailable    = "(signed URL unavailable)"
	leadEmailIntroLine = "A new lead just arrived via 2nd Opinion Construction."
)

// LinkedFile is an upload as it appears in the owner email. URL is empty
// when signing failed.
type LinkedFile struct {
	Name string
	Type *string
	Size int64
	URL  string
}

// LeadEmail is the rendered owner notification.
type LeadEmail struct {
	Subject string
	Text    string
	HTML    string
}

// ComposeLeadEmail renders the owner notification for lead and its files.
func ComposeLeadEmail(businessName string, lead *models.Lead, files []LinkedFile) LeadEmail {
	return LeadEmail{
		Subject: leadSubject(businessName, lead),
		Text:    leadText(lead, files),
		HTML:    leadHTML(lead, files),
	}
}

func leadSubject(businessName string, lead *models.Lead) string {
	name := lead.Name
	if strings.TrimSpace(name) == "" {
		name = "Unknown"
	}
	parts := []string{fmt.Sprintf("[%s Lead]", businessName), name, utils.Val(lead.City), lead.Reason}

	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " - ")
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func leadLines(lead *models.Lead) []string {
	return []string{
		"Name: " + lead.Name,
		"Email: " + lead.Email,
		"Phone: " + lead.Phone,
		"City: " + orDash(lead.City),
		"ZIP: " + orDash(lead.Zip),
		"Reason: " + lead.Reason,
		"Project Type: " + orDash(lead.ProjectType),
		"Budget Range: " + orDash(lead.BudgetRange),
		"Status: " + lead.Status,
		"Notes: " + orDash(lead.Notes),
		fmt.Sprintf("Consent: %t", lead.Consent),
		"Submitted: " + lead.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// fileLabel is "name (type) [size]" with the optional parts left out.
func fileLabel(f LinkedFile) string {
	label := f.Name
	if t := utils.Val(f.Type); t != "" {
		label += " (" + t + ")"
	}
	if f.Size > 0 {
		label += " [" + intake.FormatBytes(f.Size) + "]"
	}
	return label
}

func leadText(lead *models.Lead, files []LinkedFile) string {
	var b strings.Builder
	b.WriteString(strings.Join(leadLines(lead), "\n"))
	b.WriteString("\n\nFiles:\n")
	if len(files) == 0 {
		b.WriteString(noFilesLine)
	}
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n")
		}
		link := f.URL
		if link == "" {
			link = linkUnavailable
		}
		fmt.Fprintf(&b, "%d. %s -> %s", i+1, fileLabel(f), link)
	}
	b.WriteString("\n")
	return b.String()
}

func leadHTML(lead *models.Lead, files []LinkedFile) string {
	var lines, uploads strings.Builder
	for _, l := range leadLines(lead) {
		lines.WriteString("<li>" + html.EscapeString(l) + "</li>")
	}
	if len(files) == 0 {
		uploads.WriteString("<li>" + noFilesLine + "</li>")
	}
	for _, f := range files {
		label := html.EscapeString(fileLabel(f))
		if f.URL != "" {
			fmt.Fprintf(&uploads, `<li><a href="%s">%s</a></li>`, html.EscapeString(f.URL), label)
		} else {
			uploads.WriteString("<li>" + label + " – signed URL unavailable</li>")
		}
	}

	return "<!doctype html>\n<html>\n  <body>\n" +
		"    <p>" + leadEmailIntroLine + "</p>\n" +
		"    <ul>" + lines.String() + "</ul>\n" +
		"    <h3>Files</h3>\n" +
		"    <ul>" + uploads.String() + "</ul>\n" +
		"  </body>\n</html>"
}
