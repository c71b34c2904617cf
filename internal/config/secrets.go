package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/bitwarden/sdk-go"

	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

const (
	bwsLoginAttempts = 5
	bwsFirstBackoff  = 500 * time.Millisecond
)

// bitwardenSecrets logs in with a machine-account token and returns every
// secret of the named project in the organization.
func bitwardenSecrets(accessToken, orgID, project string) (map[string]string, error) {
	if orgID == "" {
		return nil, errors.New("BWS_ORGANIZATION_ID is required with BWS_ACCESS_TOKEN")
	}

	bw, err := sdk.NewBitwardenClient(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("bitwarden client: %w", err)
	}
	defer bw.Close()

	if err := loginWithBackoff(func() error { return bw.AccessTokenLogin(accessToken, nil) }); err != nil {
		return nil, err
	}

	projects, err := bw.Projects().List(orgID)
	if err != nil {
		return nil, fmt.Errorf("list bitwarden projects: %w", err)
	}
	projectID := ""
	for _, p := range projects.Data {
		if strings.EqualFold(p.Name, project) {
			projectID = p.ID
		}
	}
	if projectID == "" {
		return nil, fmt.Errorf("bitwarden project %q not found", project)
	}

	synced, err := bw.Secrets().Sync(orgID, nil)
	if err != nil {
		return nil, fmt.Errorf("sync bitwarden secrets: %w", err)
	}
	out := map[string]string{}
	for _, s := range synced.Secrets {
		if s.ProjectID != nil && *s.ProjectID == projectID {
			out[s.Key] = s.Value
		}
	}
	return out, nil
}

// loginWithBackoff retries login only while Bitwarden answers 429; the SDK
// surfaces no typed status, so the message is all there is to go on.
func loginWithBackoff(login func() error) error {
	wait := bwsFirstBackoff
	var err error
	for attempt := 1; attempt <= bwsLoginAttempts; attempt++ {
		if err = login(); err == nil {
			return nil
		}
		if !isRateLimited(err) {
			return fmt.Errorf("bitwarden login: %w", err)
		}
		if attempt < bwsLoginAttempts {
			utils.Logger.Warnf("Bitwarden login rate-limited, retry %d/%d in %v", attempt, bwsLoginAttempts-1, wait)
			time.Sleep(wait)
			wait *= 2
		}
	}
	return fmt.Errorf("bitwarden login still rate-limited after %d attempts: %w", bwsLoginAttempts, err)
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests")
}
