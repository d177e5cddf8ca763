package workflow_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/wekeo/hda-ingester/common"
	"github.com/wekeo/hda-ingester/interface/hda"
	"github.com/wekeo/hda-ingester/workflow"
)

func zipBytes(files map[string]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		Expect(err).NotTo(HaveOccurred())
		_, err = w.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(zw.Close()).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Runner", func() {
	var (
		ctx         context.Context
		server      *httptest.Server
		client      *hda.Client
		runner      *workflow.Runner
		downloadDir string

		safeArchive   []byte
		corineArchive []byte

		jobPolls            int
		orderSubmissions    int
		orderDownloadBroken bool
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpdir, err := os.MkdirTemp("", "hda-workflow")
		Expect(err).NotTo(HaveOccurred())
		downloadDir = filepath.Join(tmpdir, "downloads")
		jobPolls, orderSubmissions = 0, 0
		orderDownloadBroken = false

		safeArchive = zipBytes(map[string]string{
			"S2B_MSIL2A_20210507T105619.SAFE/manifest.safe": "manifest",
			"S2B_MSIL2A_20210507T105619.SAFE/B04.jp2":       "red band",
		})
		corineArchive = zipBytes(map[string]string{
			"u2018_clc2018/raster100m.tif": "raster",
		})

		mux := http.NewServeMux()
		mux.HandleFunc("/gettoken", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "test-token", "expires_in": 3600})
		})
		mux.HandleFunc("/termsaccepted/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("/datarequest", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"jobId": "job-1"})
		})
		mux.HandleFunc("/datarequest/status/job-1", func(w http.ResponseWriter, r *http.Request) {
			jobPolls++
			status := "running"
			if jobPolls > 2 {
				status = "completed"
			}
			json.NewEncoder(w).Encode(map[string]string{"status": status})
		})
		mux.HandleFunc("/datarequest/jobs/job-1/result", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"content": []common.Result{
					{
						Filename: "S2B_MSIL2A_20210507T105619.SAFE",
						Size:     int64(len(safeArchive)),
						URL:      "f65e3208-7ecb-5b24-a52e-2a2c1a1d7a1c",
						ProductInfo: common.ProductInfo{
							DatasetID: "EO:ESA:DAT:SENTINEL-2:MSI",
							Product:   "S2B_MSIL2A_20210507T105619",
						},
					},
					{
						Filename: "u2018_clc2018.zip",
						Size:     int64(len(corineArchive)),
						URL:      server.URL + "/external/u2018_clc2018.zip",
						ProductInfo: common.ProductInfo{
							DatasetID: "EO:CLMS:DAT:CORINE",
						},
					},
				},
				"totItems": 2,
				"nextPage": nil,
			})
		})
		mux.HandleFunc("/dataorder", func(w http.ResponseWriter, r *http.Request) {
			orderSubmissions++
			json.NewEncoder(w).Encode(map[string]string{"orderId": fmt.Sprintf("order-%d", orderSubmissions)})
		})
		mux.HandleFunc("/dataorder/status/", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status": "completed"})
		})
		mux.HandleFunc("/dataorder/download/", func(w http.ResponseWriter, r *http.Request) {
			if orderDownloadBroken {
				http.NotFound(w, r)
				return
			}
			w.Write(safeArchive)
		})
		mux.HandleFunc("/external/u2018_clc2018.zip", func(w http.ResponseWriter, r *http.Request) {
			w.Write(corineArchive)
		})
		server = httptest.NewServer(mux)

		client, err = hda.NewClient(hda.Config{
			Endpoint: server.URL,
			Username: "user",
			Password: "secret",
			Poll:     hda.PollPolicy{Interval: time.Millisecond, MaxAttempts: 20},
		})
		Expect(err).NotTo(HaveOccurred())
		runner = workflow.NewRunner(client)
	})

	AfterEach(func() {
		server.Close()
		os.RemoveAll(filepath.Dir(downloadDir))
	})

	Describe("running a full dataset workflow", func() {
		It("searches, orders, downloads and extracts every product", func() {
			session := workflow.NewSession("EO:ESA:DAT:SENTINEL-2:MSI", "EULA", downloadDir)
			query := common.Query{
				DatasetID: "EO:ESA:DAT:SENTINEL-2:MSI",
				BoundingBoxValues: []common.BoundingBoxValue{
					{Name: "bbox", Bbox: [4]float64{-1.13, 44.31, 0.61, 45.48}},
				},
				StringChoiceValues: []common.StringChoiceValue{
					{Name: "format", Value: "SAFE"},
				},
			}

			session, err := runner.Run(ctx, session, query)
			Expect(err).NotTo(HaveOccurred())
			Expect(session.JobID).To(Equal("job-1"))
			Expect(session.Results).To(HaveLen(2))
			Expect(session.Downloaded).To(HaveLen(2))

			// only the staged product needs an order: the direct url skips it
			Expect(orderSubmissions).To(Equal(1))
			Expect(session.Orders).To(HaveKey("S2B_MSIL2A_20210507T105619.SAFE"))
			Expect(session.Orders).NotTo(HaveKey("u2018_clc2018.zip"))

			// the SAFE product was renamed to its real archive extension
			Expect(session.Downloaded).To(ContainElement(filepath.Join(downloadDir, "S2B_MSIL2A_20210507T105619.SAFE.zip")))

			// both archives were extracted in place
			_, err = os.Stat(filepath.Join(downloadDir, "S2B_MSIL2A_20210507T105619.SAFE", "manifest.safe"))
			Expect(err).NotTo(HaveOccurred())
			_, err = os.Stat(filepath.Join(downloadDir, "u2018_clc2018", "raster100m.tif"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps fetching the remaining products when one fails", func() {
			orderDownloadBroken = true
			session := workflow.NewSession("EO:ESA:DAT:SENTINEL-2:MSI", "", downloadDir)
			query := common.Query{StringChoiceValues: []common.StringChoiceValue{{Name: "format", Value: "SAFE"}}}

			session, err := runner.Run(ctx, session, query)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("S2B_MSIL2A_20210507T105619.SAFE"))

			// the direct product was still downloaded
			Expect(session.Downloaded).To(ConsistOf(filepath.Join(downloadDir, "u2018_clc2018.zip")))
			_, err = os.Stat(filepath.Join(downloadDir, "u2018_clc2018.zip"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("is idempotent on re-normalization", func() {
			session := workflow.NewSession("EO:ESA:DAT:SENTINEL-2:MSI", "", downloadDir)
			query := common.Query{StringChoiceValues: []common.StringChoiceValue{{Name: "format", Value: "SAFE"}}}

			session, err := runner.Run(ctx, session, query)
			Expect(err).NotTo(HaveOccurred())

			listDir := func() []string {
				entries, err := os.ReadDir(downloadDir)
				Expect(err).NotTo(HaveOccurred())
				var names []string
				for _, e := range entries {
					names = append(names, e.Name())
				}
				return names
			}
			before := listDir()

			// a second workflow over the same directory fails on the path
			// conflict between the extracted directory and the download target
			session2 := workflow.NewSession("EO:ESA:DAT:SENTINEL-2:MSI", "", downloadDir)
			_, err = runner.Run(ctx, session2, query)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("path conflict"))

			Expect(listDir()).To(Equal(before))
		})
	})

	Describe("illegal transitions", func() {
		It("rejects fetching before the search completed", func() {
			session := workflow.NewSession("EO:ESA:DAT:SENTINEL-2:MSI", "", downloadDir)
			_, err := runner.Fetch(ctx, session)
			Expect(err).To(MatchError(ContainSubstring("illegal transition")))
		})

		It("rejects normalizing before anything was fetched", func() {
			session := workflow.NewSession("EO:ESA:DAT:SENTINEL-2:MSI", "", downloadDir)
			_, err := runner.Normalize(ctx, session)
			Expect(err).To(MatchError(ContainSubstring("illegal transition")))
		})

		It("rejects a query owned by another dataset", func() {
			session := workflow.NewSession("EO:ESA:DAT:SENTINEL-2:MSI", "", downloadDir)
			session, err := runner.Prepare(ctx, session)
			Expect(err).NotTo(HaveOccurred())
			_, err = runner.Search(ctx, session, common.Query{DatasetID: "EO:CLMS:DAT:CORINE"})
			Expect(err).To(HaveOccurred())
		})
	})
})
