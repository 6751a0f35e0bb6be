package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pauljones0/catalog-crawler/internal/models"
	"github.com/pauljones0/catalog-crawler/internal/upstream"
)

// --- Mock implementations ---

type mockCatalog struct {
	mu       sync.Mutex
	pages    map[string][]string // keyword -> page payloads, page 1 first
	pageErrs map[string]error    // "keyword#page" -> error
	products map[string]string
	offers   map[string]string
	onSearch func(term string, page int)

	searchCalls  []string
	productCalls []string
	offerCalls   []string
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		pages:    make(map[string][]string),
		pageErrs: make(map[string]error),
		products: make(map[string]string),
		offers:   make(map[string]string),
	}
}

func (m *mockCatalog) Search(_ context.Context, term string, page int, _ map[string]string) (upstream.Payload, error) {
	if m.onSearch != nil {
		m.onSearch(term, page)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls = append(m.searchCalls, fmt.Sprintf("%s#%d", term, page))
	if err := m.pageErrs[fmt.Sprintf("%s#%d", term, page)]; err != nil {
		return nil, err
	}
	pages := m.pages[term]
	if page > len(pages) {
		return upstream.Payload(`{"search_results":[]}`), nil
	}
	return upstream.Payload(pages[page-1]), nil
}

func (m *mockCatalog) Product(_ context.Context, itemID string) (upstream.Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productCalls = append(m.productCalls, itemID)
	body, ok := m.products[itemID]
	if !ok {
		return nil, errors.New("not found")
	}
	return upstream.Payload(body), nil
}

func (m *mockCatalog) Offers(_ context.Context, itemID string, _ int) (upstream.Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offerCalls = append(m.offerCalls, itemID)
	body, ok := m.offers[itemID]
	if !ok {
		return nil, errors.New("not found")
	}
	return upstream.Payload(body), nil
}

type mockSinks struct {
	mu        sync.Mutex
	history   []string
	summaries map[string]string
	err       error
}

func newMockSinks() *mockSinks {
	return &mockSinks{summaries: make(map[string]string)}
}

func (m *mockSinks) Record(_ context.Context, entityID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if !strings.Contains(string(payload), `"collected_at"`) {
		return errors.New("snapshot missing collected_at")
	}
	m.history = append(m.history, entityID)
	return nil
}

func (m *mockSinks) Upsert(_ context.Context, entityID, title, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.summaries[entityID] = title
	return nil
}

// searchPage builds a search payload with one item per id.
func searchPage(ids ...string) string {
	items := make([]string, 0, len(ids))
	for _, id := range ids {
		items = append(items, fmt.Sprintf(`{"item_id":%q,"title":"Item %s"}`, id, id))
	}
	return `{"search_results":[` + strings.Join(items, ",") + `]}`
}

func rangeIDs(from, to int) []string {
	var ids []string
	for i := from; i <= to; i++ {
		ids = append(ids, fmt.Sprintf("%d", i))
	}
	return ids
}

func listingIDs(ls []models.Listing) string {
	ids := make([]string, 0, len(ls))
	for _, l := range ls {
		ids = append(ids, l.ListingID)
	}
	return strings.Join(ids, ",")
}

// --- Tests ---

func TestRun_StopsAtTargetAcrossPages(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["nike"] = []string{searchPage("A", "B", "C"), searchPage("C", "D", "E"), searchPage("F")}

	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 5, MaxPages: 50})
	s := c.Run(context.Background(), "nike")

	if got := listingIDs(s.Listings); got != "A,B,C,D,E" {
		t.Errorf("Listings = %s, want A,B,C,D,E", got)
	}
	if s.State != StateStoppedByLimit || s.StopReason != StopTargetReached {
		t.Errorf("State = %s/%s, want stopped_by_limit/target_reached", s.State, s.StopReason)
	}
	if len(cat.searchCalls) != 2 {
		t.Errorf("Expected 2 search calls, got %v", cat.searchCalls)
	}
}

func TestRun_UnboundedAdoptsTotalResults(t *testing.T) {
	cat := newMockCatalog()
	first := strings.TrimSuffix(searchPage(rangeIDs(1, 10)...), "}") + `,"pagination":{"total_results":37}}`
	cat.pages["lego"] = []string{
		first,
		searchPage(rangeIDs(11, 20)...),
		searchPage(rangeIDs(21, 30)...),
		searchPage(rangeIDs(31, 40)...),
		searchPage(rangeIDs(41, 50)...),
	}

	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 0, MaxPages: 50})
	s := c.Run(context.Background(), "lego")

	if s.Target != 37 {
		t.Errorf("Target = %d, want 37", s.Target)
	}
	if len(s.Listings) != 37 {
		t.Errorf("Collected %d listings, want exactly 37", len(s.Listings))
	}
	if s.Pages != 4 {
		t.Errorf("Pages = %d, want 4", s.Pages)
	}
	if s.StopReason != StopTargetReached {
		t.Errorf("StopReason = %s, want target_reached", s.StopReason)
	}
}

func TestRun_StopConditions(t *testing.T) {
	tests := []struct {
		name       string
		pages      []string
		maxPages   int
		wantState  SessionState
		wantReason StopReason
		wantCount  int
		wantPages  int
	}{
		{
			name:       "page of only duplicates",
			pages:      []string{searchPage("A", "B"), searchPage("A", "B")},
			maxPages:   50,
			wantState:  StateExhausted,
			wantReason: StopAllDuplicates,
			wantCount:  2,
			wantPages:  2,
		},
		{
			name:       "empty first page",
			pages:      []string{searchPage()},
			maxPages:   50,
			wantState:  StateExhausted,
			wantReason: StopNoItems,
			wantCount:  0,
			wantPages:  1,
		},
		{
			name:       "runs out of pages",
			pages:      []string{searchPage("A"), searchPage("B")},
			maxPages:   50,
			wantState:  StateExhausted,
			wantReason: StopAllDuplicates,
			wantCount:  2,
			wantPages:  3,
		},
		{
			name:       "page ceiling",
			pages:      []string{searchPage("A"), searchPage("B"), searchPage("C")},
			maxPages:   2,
			wantState:  StateStoppedByLimit,
			wantReason: StopPageCeiling,
			wantCount:  2,
			wantPages:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := newMockCatalog()
			cat.pages["kw"] = tt.pages
			c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 100, MaxPages: tt.maxPages})

			s := c.Run(context.Background(), "kw")
			if s.State != tt.wantState || s.StopReason != tt.wantReason {
				t.Errorf("State = %s/%s, want %s/%s", s.State, s.StopReason, tt.wantState, tt.wantReason)
			}
			if len(s.Listings) != tt.wantCount {
				t.Errorf("Collected %d, want %d", len(s.Listings), tt.wantCount)
			}
			if s.Pages != tt.wantPages {
				t.Errorf("Pages = %d, want %d", s.Pages, tt.wantPages)
			}
		})
	}
}

func TestRun_SkipsItemsWithoutID(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["kw"] = []string{`{"search_results":[{"title":"no id"},{"item_id":"A","title":"A"}]}`}

	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 1})
	s := c.Run(context.Background(), "kw")
	if got := listingIDs(s.Listings); got != "A" {
		t.Errorf("Listings = %s, want A", got)
	}
}

func TestRun_FirstPageFailure(t *testing.T) {
	cat := newMockCatalog()
	cat.pageErrs["kw#1"] = &upstream.TransientUpstreamError{Endpoint: upstream.EndpointSearch, StatusCode: 503, Attempts: 4}

	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 5})
	s := c.Run(context.Background(), "kw")

	if s.Err == nil || !upstream.IsTransient(s.Err) {
		t.Fatalf("Expected transient error, got %v", s.Err)
	}
	if s.State != StateExhausted || s.StopReason != StopError {
		t.Errorf("State = %s/%s, want exhausted/error", s.State, s.StopReason)
	}
}

func TestRun_LaterPageFailureKeepsListings(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["kw"] = []string{searchPage("A", "B")}
	cat.pageErrs["kw#2"] = &upstream.CircuitOpenError{Dependency: "catalog_api.search"}

	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 10, MaxPages: 50})
	s := c.Run(context.Background(), "kw")

	if !errors.Is(s.Err, upstream.ErrCircuitOpen) {
		t.Errorf("Expected circuit open error, got %v", s.Err)
	}
	if len(s.Listings) != 2 {
		t.Errorf("Expected 2 listings kept, got %d", len(s.Listings))
	}
}

func TestRun_ClientErrorBodyUsedAsPage(t *testing.T) {
	cat := newMockCatalog()
	cat.pageErrs["kw#1"] = &upstream.TerminalClientError{
		Endpoint:   upstream.EndpointSearch,
		StatusCode: 404,
		Body:       upstream.Payload(searchPage("A")),
	}

	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 1})
	s := c.Run(context.Background(), "kw")
	if s.Err != nil {
		t.Fatalf("Unexpected error: %v", s.Err)
	}
	if got := listingIDs(s.Listings); got != "A" {
		t.Errorf("Listings = %s, want A", got)
	}
}

func TestRun_FiltersToyListings(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["ford mustang"] = []string{`{"search_results":[
		{"item_id":"1","title":"Ford Mustang GT Hot Wheels 1:64 Diecast"},
		{"item_id":"2","title":"Ford Mustang floor mats"},
		{"item_id":"3","title":"Toyota adapter"}
	]}`}

	c := New(cat, nil, nil, []Filter{NewToyFilter()}, Options{MaxPerKeyword: 10, MaxPages: 1})
	s := c.Run(context.Background(), "ford mustang")
	if got := listingIDs(s.Listings); got != "2,3" {
		t.Errorf("Listings = %s, want 2,3", got)
	}
}

func TestRun_RegistersWithSinks(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["kw"] = []string{searchPage("A", "B")}
	sinks := newMockSinks()

	c := New(cat, sinks, sinks, nil, Options{MaxPerKeyword: 2})
	c.Run(context.Background(), "kw")

	if len(sinks.history) != 2 {
		t.Errorf("Expected 2 history records, got %d", len(sinks.history))
	}
	if sinks.summaries["A"] != "Item A" {
		t.Errorf("Summary for A = %q", sinks.summaries["A"])
	}
}

func TestRun_SinkFailureDoesNotDropListing(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["kw"] = []string{searchPage("A")}
	sinks := newMockSinks()
	sinks.err = errors.New("db down")

	c := New(cat, sinks, sinks, nil, Options{MaxPerKeyword: 1})
	s := c.Run(context.Background(), "kw")
	if len(s.Listings) != 1 {
		t.Errorf("Expected listing kept despite sink error, got %d", len(s.Listings))
	}
}

func TestRun_CompletesFromProductAndOffers(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["kw"] = []string{searchPage("A")}
	cat.products["A"] = `{"product":{"item_id":"A","sku":"SKU-A","brand":"Acme","description":"A thing"}}`
	cat.offers["A"] = `{"offers":[{"seller":{"id":"101","name":"Acme Store"},"price":{"value":9.99,"currency":"USD"}}]}`

	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 1, FetchDetails: true, LookupOffers: true, Domain: "walmart.com"})
	s := c.Run(context.Background(), "kw")
	if len(s.Listings) != 1 {
		t.Fatalf("Expected 1 listing, got %d", len(s.Listings))
	}
	if len(cat.productCalls) != 1 || len(cat.offerCalls) != 1 {
		t.Errorf("Expected one product and one offers call, got %v and %v", cat.productCalls, cat.offerCalls)
	}
	if s.Listings[0].SKU != "SKU-A" {
		t.Errorf("SKU = %q, want SKU-A", s.Listings[0].SKU)
	}
}

func TestRun_SkipsDetailWhenPresent(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["kw"] = []string{`{"search_results":[{"item_id":"A","title":"A","brand":"Acme"}]}`}

	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 1, FetchDetails: true})
	c.Run(context.Background(), "kw")
	if len(cat.productCalls) != 0 {
		t.Errorf("Expected no product calls, got %v", cat.productCalls)
	}
}

func TestCollect_KeywordsIndependent(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["a"] = []string{searchPage("A1", "A2")}
	cat.pages["c"] = []string{searchPage("C1")}
	cat.pageErrs["b#1"] = &upstream.TransientUpstreamError{Endpoint: upstream.EndpointSearch, StatusCode: 500}

	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 2, MaxPages: 1, Concurrency: 3})
	sessions := c.Collect(context.Background(), []string{"a", "b", "c"})

	if len(sessions) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(sessions))
	}
	for i, kw := range []string{"a", "b", "c"} {
		if sessions[i].Keyword != kw {
			t.Errorf("sessions[%d].Keyword = %s, want %s", i, sessions[i].Keyword, kw)
		}
	}
	if sessions[1].Err == nil {
		t.Error("Expected keyword b to fail")
	}
	if got := listingIDs(Listings(sessions)); got != "A1,A2,C1" {
		t.Errorf("Listings = %s, want A1,A2,C1", got)
	}
	if Failed(sessions) {
		t.Error("Failed() = true with partial success")
	}
}

func TestFailed(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		sessions []*Session
		want     bool
	}{
		{"none", nil, false},
		{"all failed", []*Session{{Err: boom}, {Err: boom}}, true},
		{"one clean", []*Session{{Err: boom}, {}}, false},
		{"failed after collecting", []*Session{{Err: boom, Listings: []models.Listing{{ListingID: "x"}}}}, false},
	}
	for _, tt := range tests {
		if got := Failed(tt.sessions); got != tt.want {
			t.Errorf("%s: Failed() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNormalizeKeywords(t *testing.T) {
	got := NormalizeKeywords([]string{" Nike ", "nike", "", "Adidas", "  "})
	if strings.Join(got, "|") != "Nike|Adidas" {
		t.Errorf("NormalizeKeywords() = %v", got)
	}
}

func TestRun_KeepsListingsWithUnusableOptionalFields(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["nike"] = []string{`{"search_results":[
		{"item_id":"1","title":"Scheme-less","link":"www.walmart.com/ip/1"},
		{"item_id":"2","title":"Absolute","link":"https://www.walmart.com/ip/2"},
		{"item_id":"3","title":"Garbage link","link":"not a url"},
		{"item_id":"4","title":"Negative price","price":-5}
	]}`}
	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 5, Domain: "walmart.com"})

	s := c.Run(context.Background(), "nike")

	if got := listingIDs(s.Listings); got != "1,2,3,4" {
		t.Fatalf("Listings = %s, want 1,2,3,4", got)
	}
	if s.Listings[0].URL != "https://www.walmart.com/ip/1" {
		t.Errorf("scheme-less link = %q, want resolved", s.Listings[0].URL)
	}
	if s.Listings[2].URL != "" {
		t.Errorf("unusable link = %q, want cleared", s.Listings[2].URL)
	}
	if s.Listings[3].Price.Valid {
		t.Errorf("negative price kept: %+v", s.Listings[3].Price)
	}
}

func TestCollector_Progress(t *testing.T) {
	cat := newMockCatalog()
	cat.pages["nike"] = []string{searchPage("A", "B", "C"), searchPage("C", "D", "E")}
	cat.pages["puma"] = []string{searchPage("P")}
	c := New(cat, nil, nil, nil, Options{MaxPerKeyword: 5})

	var midRun []Progress
	cat.onSearch = func(term string, page int) {
		if term == "nike" && page == 2 {
			midRun = c.Progress()
		}
	}

	c.Collect(context.Background(), []string{"nike", "puma"})

	if len(midRun) != 2 || midRun[0].Keyword != "nike" {
		t.Fatalf("mid-run progress = %+v", midRun)
	}
	if got := midRun[0]; got.State != StatePaging || got.Pages != 1 || got.Collected != 3 || got.Target != 5 {
		t.Errorf("nike while paging = %+v", got)
	}

	final := c.Progress()
	if len(final) != 2 {
		t.Fatalf("final progress = %+v", final)
	}
	if got := final[0]; got.State != StateStoppedByLimit || got.StopReason != StopTargetReached || got.Pages != 2 || got.Collected != 5 {
		t.Errorf("nike finished = %+v", got)
	}
	if got := final[1]; got.Keyword != "puma" || got.State != StateExhausted || got.Collected != 1 {
		t.Errorf("puma finished = %+v", got)
	}
}
