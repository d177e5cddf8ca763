package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wekeo/hda-ingester/common"
	"github.com/wekeo/hda-ingester/interface/hda"
	"github.com/wekeo/hda-ingester/interface/provider"
	"github.com/wekeo/hda-ingester/service"
	"github.com/wekeo/hda-ingester/service/log"
	"go.uber.org/zap"
)

type state int

const (
	stateNew state = iota
	stateReady
	stateSearched
	stateFetched
	stateNormalized
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateReady:
		return "ready"
	case stateSearched:
		return "searched"
	case stateFetched:
		return "fetched"
	case stateNormalized:
		return "normalized"
	}
	return "unknown"
}

// Session is the state of one dataset workflow. It is a value: every step
// returns a new Session instead of mutating its receiver, so the transitions
// stay auditable. A Session is not shared between goroutines.
type Session struct {
	DatasetID   string
	Licence     string
	DownloadDir string

	JobID      string
	Format     string
	Results    []common.Result
	Orders     map[string]string
	Downloaded []string

	state state
}

// NewSession creates the session of a dataset workflow
func NewSession(datasetID, licence, downloadDir string) Session {
	return Session{
		DatasetID:   datasetID,
		Licence:     licence,
		DownloadDir: downloadDir,
	}
}

// expect guards against illegal call ordering (e.g. ordering before the job
// completed, downloading before the order completed)
func (s Session) expect(st state, step string) error {
	if s.state != st {
		return fmt.Errorf("%s: illegal transition from state %s", step, s.state)
	}
	return nil
}

// Runner executes the linear request/order/download workflow of one dataset.
// Each step fully completes, polling included, before the next one starts.
type Runner struct {
	client     *hda.Client
	direct     provider.ProductProvider
	normalizer *provider.Normalizer
}

// NewRunner creates a Runner on top of the given client
func NewRunner(client *hda.Client) *Runner {
	return &Runner{
		client:     client,
		direct:     provider.NewURLProvider(),
		normalizer: provider.NewNormalizer(),
	}
}

// Prepare authenticates and accepts the licence terms of the dataset
func (r *Runner) Prepare(ctx context.Context, s Session) (Session, error) {
	if err := s.expect(stateNew, "Prepare"); err != nil {
		return s, err
	}
	if err := r.client.Authenticate(ctx); err != nil {
		return s, fmt.Errorf("Prepare.%w", err)
	}
	if s.Licence != "" {
		if err := r.client.AcceptTerms(ctx, s.Licence); err != nil {
			return s, fmt.Errorf("Prepare.%w", err)
		}
	}
	s.state = stateReady
	return s, nil
}

// Search submits the query, polls the job until completion and lists all the
// located products
func (r *Runner) Search(ctx context.Context, s Session, query common.Query) (Session, error) {
	if err := s.expect(stateReady, "Search"); err != nil {
		return s, err
	}
	if query.DatasetID == "" {
		query.DatasetID = s.DatasetID
	} else if query.DatasetID != s.DatasetID {
		return s, fmt.Errorf("Search: query is for dataset %s, session owns %s", query.DatasetID, s.DatasetID)
	}

	jobID, err := r.client.SubmitRequest(ctx, query)
	if err != nil {
		return s, fmt.Errorf("Search.%w", err)
	}
	if err := r.client.PollRequest(ctx, jobID); err != nil {
		return s, fmt.Errorf("Search.%w", err)
	}
	results, err := r.client.ListResults(ctx, jobID)
	if err != nil {
		return s, fmt.Errorf("Search.%w", err)
	}

	s.JobID = jobID
	s.Results = results
	s.Format, _ = query.StringChoice("format")
	s.state = stateSearched
	return s, nil
}

// Fetch downloads every result of the completed job. Results with a direct
// url are fetched as they are; the others are staged by an order first.
// A failed product does not hide the remaining ones: the failures are merged
// and the loop only stops early when one of them is fatal (e.g. rejected
// credentials, which every further download would hit too).
func (r *Runner) Fetch(ctx context.Context, s Session) (Session, error) {
	if err := s.expect(stateSearched, "Fetch"); err != nil {
		return s, err
	}

	orders := provider.NewOrderProvider(r.client, s.JobID)
	downloaded := make([]string, 0, len(s.Results))
	var err error
	for _, result := range s.Results {
		prov := provider.ProductProvider(orders)
		if result.Directly() {
			prov = r.direct
		}
		log.Logger(ctx).Sugar().Infof("downloading %s via %s", result.Filename, prov.Name())
		path, e := prov.Download(ctx, result, s.DownloadDir)
		if e != nil {
			err = service.MergeErrors(true, err, fmt.Errorf("Fetch[%s].%w", result.Filename, e))
			if service.Fatal(e) {
				break
			}
			continue
		}
		downloaded = append(downloaded, path)
	}

	s.Orders = orders.Orders()
	s.Downloaded = downloaded
	if err != nil {
		return s, err
	}
	s.state = stateFetched
	return s, nil
}

// Normalize repairs the archive extension of the downloaded products when
// their declared format requires it, then extracts every archive of the
// download directory in place. Safe to re-run.
func (r *Runner) Normalize(ctx context.Context, s Session) (Session, error) {
	if err := s.expect(stateFetched, "Normalize"); err != nil {
		return s, err
	}

	repaired := make([]string, 0, len(s.Downloaded))
	for _, path := range s.Downloaded {
		path, err := r.normalizer.Repair(ctx, path, s.Format)
		if err != nil {
			return s, fmt.Errorf("Normalize.%w", err)
		}
		repaired = append(repaired, path)
	}
	if err := r.normalizer.ExtractAll(ctx, s.DownloadDir); err != nil {
		return s, fmt.Errorf("Normalize.%w", err)
	}

	s.Downloaded = repaired
	s.state = stateNormalized
	return s, nil
}

// Run executes the whole workflow of one dataset:
// authenticate, accept terms, search, poll, list, order, download, extract.
func (r *Runner) Run(ctx context.Context, s Session, query common.Query) (Session, error) {
	ctx = log.With(ctx, log.Logger(ctx).With(zap.String("run", uuid.New().String()), zap.String("dataset", s.DatasetID)))

	s, err := r.Prepare(ctx, s)
	if err != nil {
		return s, err
	}
	if s, err = r.Search(ctx, s, query); err != nil {
		return s, err
	}
	if s, err = r.Fetch(ctx, s); err != nil {
		return s, err
	}
	if s, err = r.Normalize(ctx, s); err != nil {
		return s, err
	}
	log.Logger(ctx).Sugar().Infof("workflow completed: %d products in %s", len(s.Downloaded), s.DownloadDir)
	return s, nil
}
