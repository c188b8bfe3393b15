package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/catalogxlate/internal/catalog"
	"github.com/JonMunkholm/catalogxlate/internal/clock"
	"github.com/JonMunkholm/catalogxlate/internal/upstream"
)

type harness struct {
	svc      *Service
	jobs     *memJobStore
	blobs    *memBlobs
	gw       *fakeGateway
	notifier *recordingNotifier
	clock    *clock.Fake
}

func newHarness(t *testing.T, cfg PipelineConfig) *harness {
	t.Helper()
	h := &harness{
		jobs:     newMemJobStore(),
		blobs:    newMemBlobs(),
		gw:       &fakeGateway{defaultLocale: "en"},
		notifier: &recordingNotifier{},
		clock:    clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	if cfg.Clock == nil {
		cfg.Clock = h.clock
	}
	svc, err := NewService(Deps{
		Jobs:        h.jobs,
		Credentials: memCredentials{"abc": "token"},
		Blobs:       h.blobs,
		Gateways:    func(string, string) Gateway { return h.gw },
		Notifier:    h.notifier,
	}, cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.svc = svc
	return h
}

func (h *harness) queueImport(t *testing.T, store, csv string) TranslationJob {
	t.Helper()
	url, _ := h.blobs.Put(context.Background(), "imports/"+store+"/in.csv", []byte(csv))
	job, err := h.jobs.CreateJob(context.Background(), NewJob{
		StoreHash: store, JobType: JobImport, ChannelID: 1, Locale: "fr", FileURL: &url,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (h *harness) queueExport(t *testing.T, store string) TranslationJob {
	t.Helper()
	job, err := h.jobs.CreateJob(context.Background(), NewJob{
		StoreHash: store, JobType: JobExport, ChannelID: 1, Locale: "fr",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (h *harness) job(t *testing.T, job TranslationJob) TranslationJob {
	t.Helper()
	got, err := h.jobs.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return got
}

const importCSV = `productId,name_en,name_fr,description_en,description_fr
1,"Shirt","Chemise","",""
2,"Hat","Chapeau","A hat","Un chapeau"
3,"Shoe","Chaussure","",""
4,"Sock","","",""
`

func TestProcessPendingImportRecordsFailuresAndCompletes(t *testing.T) {
	h := newHarness(t, PipelineConfig{BatchSize: 2, RequestsPerSecond: 10})
	job := h.queueImport(t, "abc", importCSV)

	summary, err := h.svc.ProcessPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if summary != (RunSummary{Pending: 1, Completed: 1}) {
		t.Errorf("summary = %+v", summary)
	}

	got := h.job(t, job)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (error %v)", got.Status, got.Error)
	}

	if ids := h.gw.updatedIDs(); len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("updated products = %v, want [1 2 3]", ids)
	}

	rows, _ := h.svc.ListJobErrors(context.Background(), job.ID)
	if len(rows) != 1 {
		t.Fatalf("got %d error rows, want 1", len(rows))
	}
	row := rows[0]
	if row.ErrorType != ErrorValidation {
		t.Errorf("error type = %s, want validation_error", row.ErrorType)
	}
	if row.EntityID == nil || *row.EntityID != 4 {
		t.Errorf("entity id = %v, want 4", row.EntityID)
	}
	if row.LineNumber != 5 {
		t.Errorf("line = %d, want 5", row.LineNumber)
	}
	if !strings.Contains(row.ErrorMessage, "name_fr") {
		t.Errorf("message = %q, want it to name the column", row.ErrorMessage)
	}
	if !strings.HasPrefix(row.RawData, "4,") {
		t.Errorf("raw data = %q", row.RawData)
	}

	// Two chunks of two records: one pacing sleep of 200ms between them.
	if sleeps := h.clock.Sleeps(); len(sleeps) != 1 || sleeps[0] != 200*time.Millisecond {
		t.Errorf("sleeps = %v, want [200ms]", sleeps)
	}

	if len(h.notifier.events) != 1 || h.notifier.events[0].Status != "completed" || h.notifier.events[0].ErrorCount != 1 {
		t.Errorf("events = %+v", h.notifier.events)
	}
}

func TestImportClassifiesParseAndAPIErrors(t *testing.T) {
	h := newHarness(t, PipelineConfig{BatchSize: 10})
	h.gw.updateErr = map[int64]error{
		2: &upstream.APIError{Message: "locale not enabled"},
		3: &upstream.RateLimitError{Exhausted: true, Attempts: 4, RetryAfter: 5 * time.Second},
	}
	job := h.queueImport(t, "abc", `productId,name_en,name_fr,options_en,options_fr
x1,"Bad","Mauvais","",""
1,"A","A-fr","",""
2,"B","B-fr","",""
3,"C","C-fr","",""
5,"E","E-fr","[{""id"":""1"",""label"":""Size""}]","not json"
`)

	if _, err := h.svc.ProcessPending(context.Background(), nil); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if got := h.job(t, job); got.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}

	rows, _ := h.svc.ListJobErrors(context.Background(), job.ID)
	want := []struct {
		line int
		typ  ErrorType
	}{
		{2, ErrorParse},
		{4, ErrorAPI},
		{5, ErrorAPI},
		{6, ErrorParse},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i, w := range want {
		if rows[i].LineNumber != w.line || rows[i].ErrorType != w.typ {
			t.Errorf("row %d = line %d %s, want line %d %s", i, rows[i].LineNumber, rows[i].ErrorType, w.line, w.typ)
		}
	}
	if rows[0].EntityID != nil {
		t.Errorf("unparseable id row has entity id %d", *rows[0].EntityID)
	}
}

func TestImportMalformedRowDoesNotFailJob(t *testing.T) {
	h := newHarness(t, PipelineConfig{BatchSize: 10})
	job := h.queueImport(t, "abc", "productId,name_en,name_fr\n1,\"A\",\"A-fr\"\n2,B \"big\",\"B-fr\"\n3,\"C\",\"C-fr\"\n")

	if _, err := h.svc.ProcessPending(context.Background(), nil); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if got := h.job(t, job); got.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (error %v)", got.Status, got.Error)
	}
	if ids := h.gw.updatedIDs(); len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("updated products = %v, want [1 3]", ids)
	}

	rows, _ := h.svc.ListJobErrors(context.Background(), job.ID)
	if len(rows) != 1 {
		t.Fatalf("got %d error rows, want 1", len(rows))
	}
	if rows[0].LineNumber != 3 || rows[0].ErrorType != ErrorParse || rows[0].EntityID != nil {
		t.Errorf("row = line %d %s entity %v, want line 3 parse_error without entity", rows[0].LineNumber, rows[0].ErrorType, rows[0].EntityID)
	}
	if rows[0].RawData != `2,B "big","B-fr"` {
		t.Errorf("raw data = %q", rows[0].RawData)
	}
}

func TestImportFailJobPolicy(t *testing.T) {
	h := newHarness(t, PipelineConfig{BatchSize: 10, ImportPolicy: FailJob})
	job := h.queueImport(t, "abc", importCSV)

	summary, err := h.svc.ProcessPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary = %+v, want one failed", summary)
	}
	got := h.job(t, job)
	if got.Status != StatusFailed || got.Error == nil {
		t.Fatalf("job = %+v, want failed with error", got)
	}
	if rows, _ := h.svc.ListJobErrors(context.Background(), job.ID); len(rows) != 1 {
		t.Errorf("got %d error rows, want 1 even when the job fails", len(rows))
	}
}

func TestImportSetupFailuresFailTheJob(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		url     string
		wantErr string
	}{
		{"missing file", "", "mem://imports/abc/gone.csv", "file not found"},
		{"no id column", "name_en,name_fr\n\"a\",\"b\"\n", "", "missing required column"},
		{"empty file", "", "", "empty file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, PipelineConfig{})
			job := h.queueImport(t, "abc", tt.csv)
			if tt.url != "" {
				h.jobs.jobs[job.ID].FileURL = &tt.url
			}

			if _, err := h.svc.ProcessPending(context.Background(), nil); err != nil {
				t.Fatalf("ProcessPending: %v", err)
			}
			got := h.job(t, job)
			if got.Status != StatusFailed {
				t.Fatalf("status = %s, want failed", got.Status)
			}
			if got.Error == nil || !strings.Contains(*got.Error, tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", got.Error, tt.wantErr)
			}
		})
	}
}

func TestProcessPendingExportKeepsFailedRowsBlank(t *testing.T) {
	h := newHarness(t, PipelineConfig{BatchSize: 1, RequestsPerSecond: 10})
	h.gw.productIDs = []int64{1, 2}
	h.gw.products = map[int64]catalog.ProductLocales{
		1: {
			Default: catalog.Overrides{BasicInformation: catalog.BasicInformation{Name: "Shirt"}},
			Target:  catalog.Overrides{BasicInformation: catalog.BasicInformation{Name: "Chemise"}},
		},
	}
	h.gw.failProducts = map[int64]error{2: &upstream.APIError{Message: "product 2 not found"}}
	job := h.queueExport(t, "abc")

	if _, err := h.svc.ProcessPending(context.Background(), nil); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	got := h.job(t, job)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (error %v)", got.Status, got.Error)
	}
	wantURL := "mem://" + ExportPath(job)
	if got.FileURL == nil || *got.FileURL != wantURL {
		t.Fatalf("fileUrl = %v, want %s", got.FileURL, wantURL)
	}

	content := string(h.blobs.files[ExportPath(job)])
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), content)
	}
	if !strings.HasPrefix(lines[0], "productId,") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], `1,"Shirt","Chemise"`) {
		t.Errorf("row 1 = %q", lines[1])
	}
	if want := "2" + strings.Repeat(`,""`, 22); lines[2] != want {
		t.Errorf("row 2 = %q, want %q", lines[2], want)
	}

	if sleeps := h.clock.Sleeps(); len(sleeps) != 1 || sleeps[0] != 100*time.Millisecond {
		t.Errorf("sleeps = %v, want [100ms]", sleeps)
	}
	if ev := h.notifier.events; len(ev) != 1 || ev[0].FileURL != wantURL {
		t.Errorf("events = %+v", ev)
	}
}

func TestProcessPendingMissingCredentialsFailsJob(t *testing.T) {
	h := newHarness(t, PipelineConfig{})
	job := h.queueExport(t, "unknown-store")

	summary, err := h.svc.ProcessPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	got := h.job(t, job)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error == nil || MapMessage(*got.Error).Code != "JOB001" {
		t.Errorf("error = %v, want a JOB001 message", got.Error)
	}
	if ev := h.notifier.events; len(ev) != 1 || ev[0].Status != "failed" {
		t.Errorf("events = %+v", ev)
	}
}

func TestCompleteWriteFailureFailsJob(t *testing.T) {
	h := newHarness(t, PipelineConfig{})
	h.gw.productIDs = []int64{1}
	h.gw.products = map[int64]catalog.ProductLocales{1: {}}
	job := h.queueExport(t, "abc")
	h.jobs.completeErr = errors.New("connection reset")

	summary, err := h.svc.ProcessPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if summary.Failed != 1 || summary.Completed != 0 {
		t.Errorf("summary = %+v, want one failed", summary)
	}
	got := h.job(t, job)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "connection reset") {
		t.Errorf("error = %v, want the write failure", got.Error)
	}
	if ev := h.notifier.events; len(ev) != 1 || ev[0].Status != "failed" || ev[0].FileURL != "" {
		t.Errorf("events = %+v", ev)
	}
}

func TestProcessPendingSkipsLostClaim(t *testing.T) {
	h := newHarness(t, PipelineConfig{})
	h.gw.productIDs = []int64{}
	lost := h.queueExport(t, "abc")
	won := h.queueExport(t, "abc")
	h.jobs.stolen[lost.ID] = true

	summary, err := h.svc.ProcessPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if summary != (RunSummary{Pending: 2, Completed: 1, Skipped: 1}) {
		t.Errorf("summary = %+v", summary)
	}
	if got := h.job(t, lost); got.Status != StatusProcessing {
		t.Errorf("lost job status = %s, want it left to its owner", got.Status)
	}
	if got := h.job(t, won); got.Status != StatusCompleted {
		t.Errorf("won job status = %s, want completed", got.Status)
	}
}

func TestProcessPendingFiltersByStore(t *testing.T) {
	h := newHarness(t, PipelineConfig{})
	mine := h.queueExport(t, "abc")
	other := h.queueExport(t, "xyz")

	store := "abc"
	summary, err := h.svc.ProcessPending(context.Background(), &store)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if summary.Pending != 1 || summary.Completed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if got := h.job(t, mine); got.Status != StatusCompleted {
		t.Errorf("abc job = %s, want completed", got.Status)
	}
	if got := h.job(t, other); got.Status != StatusPending {
		t.Errorf("xyz job = %s, want pending", got.Status)
	}
}

func TestTerminalJobsAreNotReprocessed(t *testing.T) {
	h := newHarness(t, PipelineConfig{})
	job := h.queueExport(t, "abc")

	if _, err := h.svc.ProcessPending(context.Background(), nil); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	first := h.job(t, job)

	summary, err := h.svc.ProcessPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if summary.Pending != 0 {
		t.Errorf("second pass saw %d pending jobs", summary.Pending)
	}
	if got := h.job(t, job); got.Status != first.Status || got.Status != StatusCompleted {
		t.Errorf("status moved from %s to %s", first.Status, got.Status)
	}
	if err := h.jobs.FailJob(context.Background(), job.ID, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("FailJob on completed job = %v, want ErrInvalidTransition", err)
	}
}

func TestDefaultLocaleResolution(t *testing.T) {
	tests := []struct {
		name       string
		jobDefault string
		upstream   string
		upErr      error
		fallback   string
		want       string
		wantCode   string
	}{
		{"job value wins", "de", "en", nil, "it", "de", ""},
		{"channel default", "", "en", nil, "it", "en", ""},
		{"configured fallback", "", "", upstream.ErrNoDefaultLocale, "it", "it", ""},
		{"nothing available", "", "", upstream.ErrNoDefaultLocale, "", "", "JOB006"},
		{"channel default is the target", "", "fr", nil, "it", "", "JOB007"},
		{"fallback is the target", "", "", upstream.ErrNoDefaultLocale, "FR", "", "JOB007"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, PipelineConfig{DefaultLocale: tt.fallback})
			h.gw.defaultLocale = tt.upstream
			h.gw.localeErr = tt.upErr
			h.gw.productIDs = []int64{1}
			h.gw.products = map[int64]catalog.ProductLocales{1: {}}

			job, _ := h.jobs.CreateJob(context.Background(), NewJob{
				StoreHash: "abc", JobType: JobExport, ChannelID: 1, Locale: "fr", DefaultLocale: tt.jobDefault,
			})
			if _, err := h.svc.ProcessPending(context.Background(), nil); err != nil {
				t.Fatalf("ProcessPending: %v", err)
			}
			got := h.job(t, job)
			if tt.wantCode != "" {
				if got.Status != StatusFailed || got.Error == nil || MapMessage(*got.Error).Code != tt.wantCode {
					t.Errorf("job = %s %v, want failed with %s", got.Status, got.Error, tt.wantCode)
				}
				return
			}
			header := strings.SplitN(string(h.blobs.files[ExportPath(job)]), "\n", 2)[0]
			if !strings.Contains(header, "name_"+tt.want+",name_fr") {
				t.Errorf("header = %q, want default locale %s", header, tt.want)
			}
		})
	}
}

func TestProcessPendingBusy(t *testing.T) {
	h := newHarness(t, PipelineConfig{})
	if !h.svc.Limiter().TryAcquire() {
		t.Fatal("could not take the only run slot")
	}
	defer h.svc.Limiter().Release()

	_, err := h.svc.ProcessPending(context.Background(), nil)
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("err = %v, want ErrRunInProgress", err)
	}
}

func TestCreateImportJob(t *testing.T) {
	h := newHarness(t, PipelineConfig{})
	ctx := context.Background()

	job, err := h.svc.CreateImportJob(ctx, NewJob{StoreHash: "abc", ChannelID: 1, Locale: "fr"}, []byte(importCSV))
	if err != nil {
		t.Fatalf("CreateImportJob: %v", err)
	}
	if job.JobType != JobImport || job.Status != StatusPending {
		t.Errorf("job = %+v", job)
	}
	if job.FileURL == nil || !strings.HasPrefix(*job.FileURL, "mem://imports/abc/") {
		t.Fatalf("fileUrl = %v", job.FileURL)
	}
	if _, err := h.blobs.Get(ctx, *job.FileURL); err != nil {
		t.Errorf("stored file: %v", err)
	}

	_, err = h.svc.CreateImportJob(ctx, NewJob{StoreHash: "abc", ChannelID: 1, Locale: ""}, []byte(importCSV))
	if err == nil || MapError(err).Code != "JOB005" {
		t.Errorf("invalid request err = %v, want JOB005", err)
	}
	if len(h.blobs.files) != 1 {
		t.Errorf("invalid request stored a file: %d files", len(h.blobs.files))
	}
}

func TestListJobErrorsUnknownJob(t *testing.T) {
	h := newHarness(t, PipelineConfig{})
	job := h.queueExport(t, "abc")
	delete(h.jobs.jobs, job.ID)

	if _, err := h.svc.ListJobErrors(context.Background(), job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}
