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

// DefaultMyGeneURL is the MyGene.info API base
const DefaultMyGeneURL = "https://mygene.info/v3"

var geneKeywords = []string{"gene", "genetic", "mutation", "protein"}

// GeneRelated reports whether a topic is worth a gene lookup
func GeneRelated(topic string) bool {
	topic = strings.ToLower(topic)
	for _, k := range geneKeywords {
		if strings.Contains(topic, k) {
			return true
		}
	}
	return false
}

// MyGene searches MyGene.info gene annotations
type MyGene struct {
	baseURL string
	client  *http.Client
}

// NewMyGene creates a MyGene.info source
func NewMyGene(baseURL string, client *http.Client) *MyGene {
	if baseURL == "" {
		baseURL = DefaultMyGeneURL
	}
	return &MyGene{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(client)}
}

// Name implements Source
func (g *MyGene) Name() string { return "mygene" }

type geneQueryResponse struct {
	Hits []struct {
		ID     string `json:"_id"`
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"hits"`
}

// Search implements Source
func (g *MyGene) Search(ctx context.Context, query string, limit int) ([]content.SourceReference, error) {
	params := url.Values{
		"q":      {query},
		"size":   {strconv.Itoa(limit)},
		"fields": {"name,summary,symbol"},
	}
	body, err := get(ctx, g.client, g.Name(), g.baseURL+"/query", params)
	if err != nil {
		return nil, err
	}

	var resp geneQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode gene query: %w", err)
	}

	refs := make([]content.SourceReference, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		if h.ID == "" {
			continue
		}
		title := h.Name
		if title == "" {
			title = "Gene Information"
		}
		if h.Symbol != "" {
			title = h.Symbol + ": " + title
		}
		refs = append(refs, content.SourceReference{
			Title:      title,
			URL:        g.baseURL + "/gene/" + h.ID,
			SourceType: "mygene",
		})
	}
	return refs, nil
}
