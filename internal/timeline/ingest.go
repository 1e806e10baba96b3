package timeline

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/perfmaster/agent/internal/logging"
)

const maxIngestBody = 1 << 20

// IngestHandler accepts raw performance entries from pages:
//
//	POST /entries  JSON array of entries, recorded as one batch
//	POST /load     marks the page load as complete
func IngestHandler(buf *Buffer, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = logging.Component(log, "ingest")

	mux := http.NewServeMux()
	mux.HandleFunc("/entries", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var entries []Entry
		dec := json.NewDecoder(io.LimitReader(r.Body, maxIngestBody))
		if err := dec.Decode(&entries); err != nil {
			log.WithError(err).Debug("rejecting malformed entries")
			http.Error(w, "invalid entries payload", http.StatusBadRequest)
			return
		}
		buf.Record(entries...)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/load", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		buf.MarkLoaded()
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}
