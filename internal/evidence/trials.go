package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/drfirst/go-draftguard/internal/content"
)

// DefaultClinicalTrialsURL is the ClinicalTrials.gov API base
const DefaultClinicalTrialsURL = "https://clinicaltrials.gov/api"

// ClinicalTrials searches the ClinicalTrials.gov v2 studies endpoint
type ClinicalTrials struct {
	baseURL string
	client  *http.Client
}

// NewClinicalTrials creates a ClinicalTrials.gov source
func NewClinicalTrials(baseURL string, client *http.Client) *ClinicalTrials {
	if baseURL == "" {
		baseURL = DefaultClinicalTrialsURL
	}
	return &ClinicalTrials{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(client)}
}

// Name implements Source
func (c *ClinicalTrials) Name() string { return "clinicaltrials" }

type studiesResponse struct {
	Studies []struct {
		Protocol struct {
			Identification struct {
				NCTID      string `json:"nctId"`
				BriefTitle string `json:"briefTitle"`
			} `json:"identificationModule"`
			Status struct {
				StartDate struct {
					Date string `json:"date"`
				} `json:"startDateStruct"`
			} `json:"statusModule"`
			Sponsor struct {
				Lead struct {
					Name string `json:"name"`
				} `json:"leadSponsor"`
			} `json:"sponsorCollaboratorsModule"`
		} `json:"protocolSection"`
	} `json:"studies"`
}

// Search implements Source
func (c *ClinicalTrials) Search(ctx context.Context, query string, limit int) ([]content.SourceReference, error) {
	params := url.Values{
		"query.term": {query},
		"pageSize":   {strconv.Itoa(limit)},
		"format":     {"json"},
	}
	body, err := get(ctx, c.client, c.Name(), c.baseURL+"/v2/studies", params)
	if err != nil {
		return nil, err
	}

	var resp studiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode studies: %w", err)
	}

	refs := make([]content.SourceReference, 0, len(resp.Studies))
	for _, s := range resp.Studies {
		id := s.Protocol.Identification
		if id.NCTID == "" {
			continue
		}
		title := id.BriefTitle
		if title == "" {
			title = "Clinical Trial " + id.NCTID
		}
		ref := content.SourceReference{
			Title:      title,
			URL:        "https://clinicaltrials.gov/study/" + id.NCTID,
			SourceType: "clinicaltrials",
		}
		if sponsor := s.Protocol.Sponsor.Lead.Name; sponsor != "" {
			ref.Authors = []string{sponsor}
		}
		if date := s.Protocol.Status.StartDate.Date; len(date) >= 4 {
			if year, err := strconv.Atoi(date[:4]); err == nil {
				ref.Year = year
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
