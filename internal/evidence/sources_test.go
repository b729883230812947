package evidence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const esearchXML = `<?xml version="1.0"?>
<eSearchResult><Count>2</Count><IdList><Id>111</Id><Id>222</Id></IdList></eSearchResult>`

const efetchXML = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">111</PMID>
      <Article>
        <Journal>
          <JournalIssue><PubDate><Year>2021</Year></PubDate></JournalIssue>
          <Title>Journal of Asthma</Title>
        </Journal>
        <ArticleTitle>Inhaler technique in adults</ArticleTitle>
        <AuthorList>
          <Author><LastName>Smith</LastName><ForeName>Ann</ForeName></Author>
          <Author><LastName>Jones</LastName><ForeName>Bo</ForeName></Author>
          <Author><LastName>Lee</LastName><ForeName>Cy</ForeName></Author>
          <Author><LastName>Kim</LastName><ForeName>Di</ForeName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">111</ArticleId>
        <ArticleId IdType="doi">10.1000/asthma.1</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">222</PMID>
      <Article>
        <Journal><JournalIssue><PubDate><MedlineDate>2019 Spring</MedlineDate></PubDate></JournalIssue></Journal>
        <ArticleTitle>Asthma action plans</ArticleTitle>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func TestPubMedSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("api_key") != "secret" {
			t.Errorf("api_key = %q", q.Get("api_key"))
		}
		switch r.URL.Path {
		case "/esearch.fcgi":
			if q.Get("term") != "asthma" || q.Get("retmax") != "3" || q.Get("sort") != "relevance" {
				t.Errorf("esearch query = %v", q)
			}
			_, _ = w.Write([]byte(esearchXML))
		case "/efetch.fcgi":
			if q.Get("id") != "111,222" {
				t.Errorf("efetch ids = %q", q.Get("id"))
			}
			_, _ = w.Write([]byte(efetchXML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	refs, err := NewPubMed(srv.URL+"/", "secret", srv.Client()).Search(context.Background(), "asthma", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs", len(refs))
	}

	first := refs[0]
	if first.PMID != "111" || first.URL != "https://pubmed.ncbi.nlm.nih.gov/111/" || first.SourceType != "pubmed" {
		t.Errorf("first = %+v", first)
	}
	if len(first.Authors) != 3 || first.Authors[0] != "Ann Smith" {
		t.Errorf("authors = %v", first.Authors)
	}
	if first.Year != 2021 || first.DOI != "10.1000/asthma.1" || first.Journal != "Journal of Asthma" {
		t.Errorf("first = %+v", first)
	}
	if refs[1].Year != 0 || len(refs[1].Authors) != 0 {
		t.Errorf("second = %+v", refs[1])
	}
}

func TestPubMedNoHits(t *testing.T) {
	var fetched bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/efetch.fcgi" {
			fetched = true
		}
		_, _ = w.Write([]byte(`<eSearchResult><IdList></IdList></eSearchResult>`))
	}))
	defer srv.Close()

	refs, err := NewPubMed(srv.URL, "", srv.Client()).Search(context.Background(), "nothing", 3)
	if err != nil || len(refs) != 0 {
		t.Fatalf("refs = %v, err = %v", refs, err)
	}
	if fetched {
		t.Error("efetch called without ids")
	}
}

func TestPubMedStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewPubMed(srv.URL, "", srv.Client()).Search(context.Background(), "asthma", 3)
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusTooManyRequests || serr.Source != "pubmed" {
		t.Fatalf("err = %v", err)
	}
}

func TestClinicalTrialsSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/studies" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("query.term") != "asthma" || r.URL.Query().Get("pageSize") != "2" {
			t.Errorf("query = %v", r.URL.Query())
		}
		_, _ = w.Write([]byte(`{"studies":[
			{"protocolSection":{"identificationModule":{"nctId":"NCT01","briefTitle":"Inhaled steroids"},
			 "statusModule":{"startDateStruct":{"date":"2018-04"}},
			 "sponsorCollaboratorsModule":{"leadSponsor":{"name":"NIH"}}}},
			{"protocolSection":{"identificationModule":{"nctId":"NCT02"}}},
			{"protocolSection":{"identificationModule":{"briefTitle":"no id"}}}
		]}`))
	}))
	defer srv.Close()

	refs, err := NewClinicalTrials(srv.URL, srv.Client()).Search(context.Background(), "asthma", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs", len(refs))
	}
	if refs[0].URL != "https://clinicaltrials.gov/study/NCT01" || refs[0].Year != 2018 || refs[0].Authors[0] != "NIH" {
		t.Errorf("first = %+v", refs[0])
	}
	if refs[1].Title != "Clinical Trial NCT02" {
		t.Errorf("second title = %q", refs[1].Title)
	}
}

func TestMyGeneSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":[{"_id":"672","name":"BRCA1 DNA repair associated","symbol":"BRCA1"}]}`))
	}))
	defer srv.Close()

	refs, err := NewMyGene(srv.URL, srv.Client()).Search(context.Background(), "brca1 gene", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(refs) != 1 || refs[0].Title != "BRCA1: BRCA1 DNA repair associated" {
		t.Fatalf("refs = %+v", refs)
	}
	if !strings.HasSuffix(refs[0].URL, "/gene/672") {
		t.Errorf("url = %q", refs[0].URL)
	}
}

func TestGeneRelated(t *testing.T) {
	tests := []struct {
		topic string
		want  bool
	}{
		{"BRCA1 Mutation screening", true},
		{"genetic counselling", true},
		{"asthma", false},
	}
	for _, tt := range tests {
		if got := GeneRelated(tt.topic); got != tt.want {
			t.Errorf("GeneRelated(%q) = %v, want %v", tt.topic, got, tt.want)
		}
	}
}
