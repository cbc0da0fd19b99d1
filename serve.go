package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mjl-/mimefeed/message"
	"github.com/mjl-/mimefeed/metrics"
	"github.com/mjl-/mimefeed/mlog"
)

var serveConfigPath string

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "mimefeed.conf", "path to config file, see the describeconf command")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve message parsing over http",
	Long: `Serve message parsing over http.

POST a raw message to /parse and the decoded part tree is returned as JSON.
Bodies are included base64-encoded unless ?bodies=false is passed. Prometheus
metrics are at /metrics, on the admin address if one is configured.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(serveConfigPath)
		if err != nil {
			return err
		}
		log := mlog.New("serve")

		mux := http.NewServeMux()
		mux.HandleFunc("/parse", func(w http.ResponseWriter, r *http.Request) {
			serveParse(config, log, w, r)
		})
		if config.AdminAddress != "" && config.AdminAddress != config.Address {
			adminMux := http.NewServeMux()
			adminMux.Handle("/metrics", promhttp.Handler())
			go func() {
				log.Print("listening for metrics", mlog.Field("address", config.AdminAddress))
				log.Fatalx("metrics listener", http.ListenAndServe(config.AdminAddress, adminMux))
			}()
		} else {
			mux.Handle("/metrics", promhttp.Handler())
		}

		log.Print("listening", mlog.Field("address", config.Address))
		if err := http.ListenAndServe(config.Address, mux); err != nil {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	},
}

func serveParse(config Config, log *mlog.Log, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "405 - method not allowed - use post", http.StatusMethodNotAllowed)
		return
	}
	body := http.MaxBytesReader(w, r.Body, config.MaxMessageSize)
	defer body.Close()

	cfg := message.Config{Pedantic: config.Pedantic, MaxLineLength: config.MaxLineLength}
	msg, err := message.Parse(cfg, body)
	if err != nil {
		metrics.MessageInc("error")
		metrics.ParseErrorInc(errorKind(err))
		log.Infox("parsing message", err)
	} else {
		metrics.MessageInc("ok")
		countDecoded(msg)
	}

	bodies := r.URL.Query().Get("bodies") != "false"
	resp := struct {
		Error   string `json:",omitempty"`
		Message partView
	}{Message: viewPartBodies(msg, bodies)}
	if err != nil {
		resp.Error = err.Error()
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	if err := enc.Encode(resp); err != nil {
		log.Infox("writing response", err)
	}
}
