package evidence

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/drfirst/go-draftguard/internal/content"
)

// DefaultPubMedURL is the NCBI E-utilities base
const DefaultPubMedURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

const maxAuthors = 3

// PubMed searches PubMed through esearch and efetch
type PubMed struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPubMed creates a PubMed source. apiKey is optional; client may be nil.
func NewPubMed(baseURL, apiKey string, client *http.Client) *PubMed {
	if baseURL == "" {
		baseURL = DefaultPubMedURL
	}
	return &PubMed{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  newHTTPClient(client),
	}
}

// Name implements Source
func (p *PubMed) Name() string { return "pubmed" }

type esearchResult struct {
	IDs []string `xml:"IdList>Id"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID    string `xml:"MedlineCitation>PMID"`
	Article struct {
		Title   string `xml:"ArticleTitle"`
		Journal struct {
			Title string `xml:"Title"`
			Year  string `xml:"JournalIssue>PubDate>Year"`
		} `xml:"Journal"`
		Authors []struct {
			LastName string `xml:"LastName"`
			ForeName string `xml:"ForeName"`
		} `xml:"AuthorList>Author"`
	} `xml:"MedlineCitation>Article"`
	ArticleIDs []struct {
		Type  string `xml:"IdType,attr"`
		Value string `xml:",chardata"`
	} `xml:"PubmedData>ArticleIdList>ArticleId"`
}

// Search implements Source
func (p *PubMed) Search(ctx context.Context, query string, limit int) ([]content.SourceReference, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmax":  {strconv.Itoa(limit)},
		"retmode": {"xml"},
		"sort":    {"relevance"},
	}
	p.sign(params)

	body, err := get(ctx, p.client, p.Name(), p.baseURL+"/esearch.fcgi", params)
	if err != nil {
		return nil, err
	}
	var search esearchResult
	if err := xml.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("decode esearch: %w", err)
	}
	if len(search.IDs) == 0 {
		return nil, nil
	}

	params = url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(search.IDs, ",")},
		"retmode": {"xml"},
	}
	p.sign(params)

	body, err = get(ctx, p.client, p.Name(), p.baseURL+"/efetch.fcgi", params)
	if err != nil {
		return nil, err
	}
	return parseArticles(body)
}

func (p *PubMed) sign(params url.Values) {
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
}

func parseArticles(body []byte) ([]content.SourceReference, error) {
	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode efetch: %w", err)
	}

	refs := make([]content.SourceReference, 0, len(set.Articles))
	for _, a := range set.Articles {
		pmid := strings.TrimSpace(a.PMID)
		title := strings.TrimSpace(a.Article.Title)
		if pmid == "" || title == "" {
			continue
		}

		ref := content.SourceReference{
			Title:      title,
			Journal:    strings.TrimSpace(a.Article.Journal.Title),
			PMID:       pmid,
			URL:        "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
			SourceType: "pubmed",
		}
		for _, au := range a.Article.Authors {
			if len(ref.Authors) == maxAuthors {
				break
			}
			name := strings.TrimSpace(au.ForeName + " " + au.LastName)
			if name != "" {
				ref.Authors = append(ref.Authors, name)
			}
		}
		if year, err := strconv.Atoi(strings.TrimSpace(a.Article.Journal.Year)); err == nil {
			ref.Year = year
		}
		for _, id := range a.ArticleIDs {
			if id.Type == "doi" {
				ref.DOI = strings.TrimSpace(id.Value)
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
