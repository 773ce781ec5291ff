package linkcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/history"
	"github.com/sells-group/weekly-intel/internal/model"
)

func newTestChecker(t *testing.T, handler http.Handler) (*Checker, *events.CaptureEmitter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	emitter := events.NewCaptureEmitter()
	v := NewValidator(WithHTTPClient(srv.Client()))
	return NewChecker(v, emitter, 4), emitter, srv
}

func okHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>ok</body></html>")) //nolint:errcheck
	})
	mux.HandleFunc("/dead", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return mux
}

func TestChecker_KeepsLiveOpportunities(t *testing.T) {
	checker, _, srv := newTestChecker(t, okHandler())

	opportunities := []model.Opportunity{
		{Title: "A", URL: srv.URL + "/a", Section: model.SectionMarket},
		{Title: "B", URL: srv.URL + "/b", Section: model.SectionMarket},
	}
	candidates := []model.SourceCandidate{
		{URL: srv.URL + "/a", Title: "A"},
		{URL: srv.URL + "/b", Title: "B"},
	}

	out := checker.ValidateAndRecover(context.Background(), "client-7", opportunities, candidates, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Title)
	assert.Equal(t, "B", out[1].Title)
}

func TestChecker_RecoversFabricatedURL(t *testing.T) {
	checker, emitter, srv := newTestChecker(t, okHandler())

	opportunities := []model.Opportunity{
		{Title: "Como o mercado cresceu", URL: srv.URL + "/fake-123", Section: model.SectionMarket},
	}
	candidates := []model.SourceCandidate{
		{URL: srv.URL + "/real-123", Title: "Como o mercado cresceu", Domain: "127.0.0.1"},
	}

	out := checker.ValidateAndRecover(context.Background(), "client-7", opportunities, candidates, nil)
	require.Len(t, out, 1)
	assert.Equal(t, srv.URL+"/real-123", out[0].URL)

	recovered := emitter.Named("link_recovered")
	require.Len(t, recovered, 1)
	assert.Equal(t, srv.URL+"/fake-123", recovered[0].(events.LinkRecovered).ModelURL)
}

func TestChecker_DropsConfirmedDeadLink(t *testing.T) {
	checker, emitter, srv := newTestChecker(t, okHandler())

	opportunities := []model.Opportunity{
		{Title: "Dead", URL: srv.URL + "/dead", Section: model.SectionTrends},
	}
	candidates := []model.SourceCandidate{
		{URL: srv.URL + "/dead", Title: "Dead"},
	}

	out := checker.ValidateAndRecover(context.Background(), "client-7", opportunities, candidates, nil)
	assert.Empty(t, out)

	dropped := emitter.Named("link_dropped")
	require.Len(t, dropped, 1)
	assert.Equal(t, "hard_404", dropped[0].(events.LinkDropped).Status)
}

func TestChecker_DeadLinkSwappedForFreshCandidate(t *testing.T) {
	checker, emitter, srv := newTestChecker(t, okHandler())

	opportunities := []model.Opportunity{
		{Title: "Dead", URL: srv.URL + "/dead", Section: model.SectionTrends},
	}
	candidates := []model.SourceCandidate{
		{URL: srv.URL + "/dead", Title: "Dead", Domain: "127.0.0.1", Path: "/dead"},
		{URL: srv.URL + "/alive", Title: "Alive", Domain: "127.0.0.1", Path: "/alive"},
	}

	out := checker.ValidateAndRecover(context.Background(), "client-7", opportunities, candidates, nil)
	require.Len(t, out, 1)
	assert.Equal(t, srv.URL+"/alive", out[0].URL)
	assert.NotEmpty(t, emitter.Named("link_recovered"))
}

func TestChecker_HistoryCollisionSwapped(t *testing.T) {
	checker, emitter, srv := newTestChecker(t, okHandler())

	opportunities := []model.Opportunity{
		{Title: "Repeat", URL: srv.URL + "/seen", Section: model.SectionMarket},
	}
	candidates := []model.SourceCandidate{
		{URL: srv.URL + "/seen", Title: "Repeat", Domain: "127.0.0.1", Path: "/seen"},
		{URL: srv.URL + "/fresh", Title: "Fresh", Domain: "127.0.0.1", Path: "/fresh"},
	}
	recent := map[string]time.Time{
		history.EntryKey("127.0.0.1", "/seen"): time.Now().AddDate(0, 0, -14),
	}

	out := checker.ValidateAndRecover(context.Background(), "client-7", opportunities, candidates, recent)
	require.Len(t, out, 1)
	assert.Equal(t, srv.URL+"/fresh", out[0].URL)
	assert.NotEmpty(t, emitter.Named("link_recovered"))
}

func TestChecker_HistoryCollisionNoSwapDrops(t *testing.T) {
	checker, emitter, srv := newTestChecker(t, okHandler())

	opportunities := []model.Opportunity{
		{Title: "Repeat", URL: srv.URL + "/seen", Section: model.SectionMarket},
	}
	candidates := []model.SourceCandidate{
		{URL: srv.URL + "/seen", Title: "Repeat", Domain: "127.0.0.1", Path: "/seen"},
	}
	recent := map[string]time.Time{
		history.EntryKey("127.0.0.1", "/seen"): time.Now().AddDate(0, 0, -7),
	}

	out := checker.ValidateAndRecover(context.Background(), "client-7", opportunities, candidates, recent)
	assert.Empty(t, out)

	dropped := emitter.Named("link_dropped")
	require.Len(t, dropped, 1)
	assert.Equal(t, "history_collision", dropped[0].(events.LinkDropped).Status)
}

func TestChecker_UnreachableKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL + "/gone-away"
	srv.Close()

	emitter := events.NewCaptureEmitter()
	checker := NewChecker(NewValidator(), emitter, 2)

	opportunities := []model.Opportunity{
		{Title: "Slow site", URL: deadURL, Section: model.SectionMarket},
	}
	candidates := []model.SourceCandidate{{URL: deadURL, Title: "Slow site"}}

	out := checker.ValidateAndRecover(context.Background(), "client-7", opportunities, candidates, nil)
	require.Len(t, out, 1)
	assert.Empty(t, emitter.Named("link_dropped"))
}
