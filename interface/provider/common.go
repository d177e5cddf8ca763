package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cavaliercoder/grab"
	"github.com/wekeo/hda-ingester/service"
	"github.com/wekeo/hda-ingester/service/log"
)

const (
	retryDelay = 30 * time.Second
	nbRetries  = 3
)

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

// prepareDestination creates the download directory if needed and checks that
// the target path is writable as a file. A directory left at the target by a
// previous run (e.g. an extracted product) is reported as ErrPathConflict, not
// as a raw filesystem error.
func prepareDestination(localDir, filename string) (string, error) {
	if err := os.MkdirAll(localDir, 0766); err != nil {
		return "", service.MakeTemporary(fmt.Errorf("make directory %s: %w", localDir, err))
	}
	target := filepath.Join(localDir, filename)
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return "", service.ErrPathConflict{Path: target, Reason: "destination already exists as a directory"}
	}
	return target, nil
}

// download a file with display every 5%, then verify the declared byte size
func download(ctx context.Context, client *grab.Client, req *grab.Request, displayPrefix string, declaredSize int64) error {
	// a stale file at the target would make grab attempt a resume
	if err := os.Remove(req.Filename); err != nil && !os.IsNotExist(err) {
		return service.MakeTemporary(fmt.Errorf("download[%s]: %w", req.Filename, err))
	}

	resp := client.Do(req)

	displayProgress(ctx, displayPrefix, resp, 0.05)

	if err := resp.Err(); err != nil {
		err = fmt.Errorf("download[%s]: %w", req.URL(), err)
		if resp.HTTPResponse == nil {
			return service.MakeTemporary(err)
		}
		switch resp.HTTPResponse.StatusCode {
		case 408, 429, 500, 501, 502, 503, 504:
			return service.MakeTemporary(err)
		default:
			return err
		}
	}

	if declaredSize > 0 && resp.BytesComplete() != declaredSize {
		return service.ErrIncompleteDownload{Path: req.Filename, Declared: declaredSize, Written: resp.BytesComplete()}
	}
	return nil
}
