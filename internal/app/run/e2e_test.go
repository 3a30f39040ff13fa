package run

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/lumiscrape/internal/config"
	"github.com/John-Robertt/lumiscrape/internal/domain"
	"github.com/John-Robertt/lumiscrape/internal/ledger"
	"github.com/John-Robertt/lumiscrape/internal/provider/lumiere"
)

const mainPage = `<html><body>
<h1 class="page-title item-title">The Rules of the Game</h1>
<video src="/media/48028.mp4"></video>
<span class="dk">Subtitle: English</span>
</body></html>`

const infoPage = `<html><body>
<div class="film-info">
<span class="dk">Director:</span>
<span>Jean Renoir</span>
<span class="dk">Country:</span>
<span>France</span>
<span class="dk">Year:</span>
<span>1939</span>
<span class="dk">Language:</span>
<span>French</span>
<span class="dk">Distributor:</span>
<span>Janus Films</span>
<span class="dk">Purchased At:</span>
<span>http://example.com/x</span>
</div>
<div>
<h3>Synopsis</h3>
A marquis hosts a weekend hunting party.
</div>
</body></html>`

type fixedProber struct {
	minutes int
	err     error
}

func (p fixedProber) Minutes(ctx context.Context, mediaURL string) (int, error) {
	return p.minutes, p.err
}

// newSite 模拟 Lumiere：48028 存在；statuses 中的 ID 返回指定状态码；其余 404。
func newSite(t *testing.T, statuses map[string]int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/students/items/48028", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(mainPage)) })
	mux.HandleFunc("/students/items/48028/film_info", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(infoPage)) })
	for id, code := range statuses {
		code := code
		mux.HandleFunc("/students/items/"+id, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(code) })
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	fs     afero.Fs
	eff    config.EffectiveConfig
	deps   Deps
	ledger *ledger.CSV
}

func newEnv(t *testing.T, srv *httptest.Server, start, stop int) *env {
	t.Helper()
	fs := afero.NewMemMapFs()
	lw := ledger.NewCSV(fs, "/work/films.csv", ledger.ModeHistory)
	return &env{
		fs: fs,
		eff: config.EffectiveConfig{
			BaseURL:       srv.URL,
			Start:         start,
			Stop:          stop,
			Save:          true,
			LedgerPath:    "/work/films.csv",
			FailedIDsPath: "/work/failed_ids.txt",
		},
		deps: Deps{
			Source: lumiere.New(srv.URL, nil),
			Client: srv.Client(),
			Prober: fixedProber{minutes: 110},
			Ledger: lw,
			Fs:     fs,
		},
		ledger: lw,
	}
}

func (e *env) failedIDs(t *testing.T) string {
	t.Helper()
	b, err := afero.ReadFile(e.fs, "/work/failed_ids.txt")
	require.NoError(t, err)
	return string(b)
}

func TestExecute_SingleItemRange(t *testing.T) {
	srv := newSite(t, nil)
	e := newEnv(t, srv, 48028, 48029)

	rr, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, rr.Summary.Succeeded)
	assert.Equal(t, 0, rr.Summary.Failures())
	require.Len(t, rr.Items, 1)
	assert.Equal(t, "48028", rr.Items[0].ID)
	assert.Equal(t, domain.ExpectedAttrCount, rr.Items[0].AttrCount)
	assert.Equal(t, 110, rr.Items[0].DurationMinutes)

	rows, err := e.ledger.ReadRows()
	require.NoError(t, err)
	require.Len(t, rows, 2, "表头 + 1 行")
	assert.Equal(t, domain.ExpectedAttrCount, len(rows[0]))
	assert.Contains(t, rows[0], "purchased_at")

	assert.Equal(t, "", e.failedIDs(t))
	assert.True(t, rr.Ledger.Saved)
	assert.Equal(t, 1, rr.Ledger.Appended)
}

func TestExecute_RerunIsIdempotent(t *testing.T) {
	srv := newSite(t, nil)
	e := newEnv(t, srv, 48028, 48029)

	_, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.NoError(t, err)
	rr, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, rr.Ledger.Appended)
	assert.Equal(t, 1, rr.Ledger.Skipped)
	rows, err := e.ledger.ReadRows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExecute_NotFoundContinues(t *testing.T) {
	srv := newSite(t, nil)
	e := newEnv(t, srv, 48027, 48030)

	rr, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, rr.Summary.Succeeded)
	assert.Equal(t, 2, rr.Summary.NotFound)
	assert.Equal(t, []string{"48027", "48029"}, rr.FailedIDs)
	assert.Equal(t, "48027\n48029\n", e.failedIDs(t))
	assert.Equal(t, domain.ErrCodeNotFound, rr.Items[0].ErrorCode)
}

func TestExecute_NetworkErrorAborts(t *testing.T) {
	srv := newSite(t, map[string]int{"48027": http.StatusInternalServerError})
	e := newEnv(t, srv, 48027, 48029)

	rr, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.Error(t, err)

	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.ErrCodeNetworkFailed, ae.Code)
	assert.Equal(t, "48027", ae.ID)
	assert.True(t, rr.Aborted)
	assert.Equal(t, domain.ErrCodeNetworkFailed, rr.AbortCode)
	assert.Len(t, rr.Items, 1, "终止后不再处理后续 ID")

	ok, err := afero.Exists(e.fs, "/work/films.csv")
	require.NoError(t, err)
	assert.False(t, ok, "终止时不写 ledger")
	ok, err = afero.Exists(e.fs, "/work/failed_ids.txt")
	require.NoError(t, err)
	assert.False(t, ok, "终止时不写 failed_ids")
}

func TestExecute_ContinueOnError(t *testing.T) {
	srv := newSite(t, map[string]int{"48027": http.StatusInternalServerError})
	e := newEnv(t, srv, 48027, 48029)
	e.eff.ContinueOnError = true

	rr, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rr.Summary.Succeeded)
	assert.Equal(t, 1, rr.Summary.Failed)
	assert.Equal(t, "48027\n", e.failedIDs(t))
}

func TestExecute_ProbeErrorAborts(t *testing.T) {
	srv := newSite(t, nil)
	e := newEnv(t, srv, 48028, 48029)
	e.deps.Prober = fixedProber{err: errors.New("frame rate is zero")}

	rr, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeProbeFailed, rr.AbortCode)
}

func TestExecute_SaveDisabled(t *testing.T) {
	srv := newSite(t, nil)
	e := newEnv(t, srv, 48028, 48030)
	e.deps.Ledger = nil

	rr, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.NoError(t, err)
	assert.False(t, rr.Ledger.Saved)
	ok, _ := afero.Exists(e.fs, "/work/films.csv")
	assert.False(t, ok)
	ok, _ = afero.Exists(e.fs, "/work/failed_ids.txt")
	assert.False(t, ok)
}

func TestExecute_NoSuccessSkipsLedgerButWritesFailedIDs(t *testing.T) {
	srv := newSite(t, nil)
	e := newEnv(t, srv, 48029, 48031)

	rr, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.NoError(t, err)
	assert.False(t, rr.Ledger.Saved)
	ok, _ := afero.Exists(e.fs, "/work/films.csv")
	assert.False(t, ok)
	assert.Equal(t, "48029\n48030\n", e.failedIDs(t))
	assert.Equal(t, []string{"Failed to process any queries."}, SummaryLines(rr, 0))
}

func TestExecute_DelayOnce(t *testing.T) {
	srv := newSite(t, nil)
	e := newEnv(t, srv, 48027, 48030)
	e.eff.Delay = 200 * time.Millisecond

	var calls []time.Duration
	e.deps.Sleep = func(ctx context.Context, d time.Duration) error {
		calls = append(calls, d)
		return nil
	}

	_, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, calls)
}

func TestExecute_Canceled(t *testing.T) {
	srv := newSite(t, nil)
	e := newEnv(t, srv, 48028, 48030)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rr, err := Execute(ctx, e.eff, e.deps, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeCanceled, rr.AbortCode)
	assert.Empty(t, rr.Items)
}

func TestExecute_EmptyRange(t *testing.T) {
	srv := newSite(t, nil)
	e := newEnv(t, srv, 48028, 48028)

	rr, err := Execute(context.Background(), e.eff, e.deps, nil)
	require.NoError(t, err)
	assert.Empty(t, rr.Items)
	assert.Equal(t, "", e.failedIDs(t))
}

func TestSummaryLines(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rr := domain.RunReport{
		StartedAt:  start,
		FinishedAt: start.Add(1200 * time.Millisecond),
		Summary:    domain.ReportSummary{Succeeded: 2, NotFound: 1},
	}

	got := SummaryLines(rr, 200*time.Millisecond)
	require.Len(t, got, 2)
	// work = 1.2 - 0.2 = 1.0；total = 1.0 + 2*0.2 = 1.4；per = 0.5
	assert.Equal(t, "Successfully processed 2 queries in 1.4s (0.5s per query).", got[0])
	assert.Equal(t, "Failed to process 1 queries.", got[1])
}
