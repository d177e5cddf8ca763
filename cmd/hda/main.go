package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/wekeo/hda-ingester/common"
	"github.com/wekeo/hda-ingester/interface/hda"
	"github.com/wekeo/hda-ingester/service/log"
	"github.com/wekeo/hda-ingester/workflow"
	"go.uber.org/zap"
)

type config struct {
	Endpoint        string
	DatasetID       string
	QueryFile       string
	DownloadDir     string
	Licence         string
	PollInterval    time.Duration
	PollMaxAttempts int
	PageSize        int
	Timeout         time.Duration
}

func newAppConfig() (*config, error) {
	config := config{}

	flag.StringVar(&config.Endpoint, "endpoint", "https://apis.wekeo.eu/databroker/v1", "base address of the data access API")
	flag.StringVar(&config.DatasetID, "dataset-id", "", "dataset identifier (default: the datasetId of the query file)")
	flag.StringVar(&config.QueryFile, "query", "", "path of the query descriptor (json)")
	flag.StringVar(&config.DownloadDir, "download-dir", "./data", "directory where the products are downloaded and extracted")
	flag.StringVar(&config.Licence, "licence", "Copernicus_General_License", "licence terms to accept before data access (empty to skip)")
	flag.DurationVar(&config.PollInterval, "poll-interval", 5*time.Second, "delay between two status polls")
	flag.IntVar(&config.PollMaxAttempts, "poll-max-attempts", 60, "maximum number of status polls per job or order")
	flag.IntVar(&config.PageSize, "page-size", 100, "number of result entries per page")
	flag.DurationVar(&config.Timeout, "timeout", 0, "wall-clock budget of the whole workflow (0: none)")

	flag.Parse()

	if config.QueryFile == "" {
		return nil, fmt.Errorf("missing query config flag")
	}
	if config.DownloadDir == "" {
		return nil, fmt.Errorf("missing download-dir config flag")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	// Credentials come from the environment only, never from flags or logs
	username, password := os.Getenv("HDA_USERNAME"), os.Getenv("HDA_PASSWORD")
	if username == "" || password == "" {
		return fmt.Errorf("missing HDA_USERNAME or HDA_PASSWORD environment variables")
	}

	body, err := os.ReadFile(config.QueryFile)
	if err != nil {
		return fmt.Errorf("read query file: %w", err)
	}
	var query common.Query
	if err := json.Unmarshal(body, &query); err != nil {
		return fmt.Errorf("parse query file %s: %w", config.QueryFile, err)
	}

	datasetID := config.DatasetID
	if datasetID == "" {
		datasetID = query.DatasetID
	}
	if datasetID == "" {
		return fmt.Errorf("missing dataset-id config flag and query datasetId")
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	client, err := hda.NewClient(hda.Config{
		Endpoint: config.Endpoint,
		Username: username,
		Password: password,
		Poll:     hda.PollPolicy{Interval: config.PollInterval, MaxAttempts: config.PollMaxAttempts},
		PageSize: config.PageSize,
	})
	if err != nil {
		return err
	}

	session := workflow.NewSession(datasetID, config.Licence, config.DownloadDir)
	session, err = workflow.NewRunner(client).Run(ctx, session, query)
	if err != nil {
		return err
	}

	for _, path := range session.Downloaded {
		log.Logger(ctx).Sugar().Infof("downloaded %s", path)
	}
	return nil
}
