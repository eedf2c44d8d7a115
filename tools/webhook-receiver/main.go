// Command webhook-receiver is a local target for manual delivery testing.
// It records incoming hooks in memory, optionally verifies signatures when
// SECRET is set, and can simulate a flaky endpoint via FORCE_STATUS.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const keepLast = 50

type hookRecord struct {
	Timestamp      string            `json:"timestamp"`
	Method         string            `json:"method"`
	Path           string            `json:"path"`
	Headers        map[string]string `json:"headers"`
	Body           string            `json:"body"`
	SignatureValid *bool             `json:"signature_valid,omitempty"`
}

type receiver struct {
	secret      string
	forceStatus int // 0 means always answer 200

	mu      sync.Mutex
	total   int64
	records []hookRecord
	since   time.Time
}

func main() {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	rcv := &receiver{
		secret: os.Getenv("SECRET"),
		since:  time.Now().UTC(),
	}
	if v := os.Getenv("FORCE_STATUS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 100 || n > 599 {
			log.Fatalf("FORCE_STATUS %q is not an HTTP status code", v)
		}
		rcv.forceStatus = n
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/hook", rcv.hook)
	mux.HandleFunc("/stats", rcv.stats)
	mux.HandleFunc("/reset", rcv.reset)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	log.Printf("webhook-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func (rc *receiver) hook(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	rec := hookRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Method:    r.Method,
		Path:      r.URL.Path,
		Headers:   firstHeaderValues(r.Header),
		Body:      string(body),
	}
	if rc.secret != "" {
		valid := rc.verify(body, r.Header.Get("X-EasyTrigger-Signature"))
		rec.SignatureValid = &valid
		if !valid {
			log.Printf("hook signature mismatch (path=%s)", r.URL.Path)
		}
	}

	rc.mu.Lock()
	rc.total++
	rc.records = append(rc.records, rec)
	if len(rc.records) > keepLast {
		rc.records = rc.records[len(rc.records)-keepLast:]
	}
	n := rc.total
	rc.mu.Unlock()

	log.Printf("hook #%d: %s", n, body)
	if rc.forceStatus != 0 {
		w.WriteHeader(rc.forceStatus)
		return
	}
	fmt.Fprintf(w, `{"received":%d}`, n)
}

// verify checks the dispatcher's HMAC-SHA256 hex signature over the raw body.
func (rc *receiver) verify(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(rc.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (rc *receiver) stats(w http.ResponseWriter, _ *http.Request) {
	rc.mu.Lock()
	out := struct {
		Count        int64        `json:"count"`
		LastRequests []hookRecord `json:"last_requests"`
		Since        string       `json:"since"`
	}{rc.total, rc.records, rc.since.Format(time.RFC3339)}
	rc.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (rc *receiver) reset(w http.ResponseWriter, _ *http.Request) {
	rc.mu.Lock()
	rc.total = 0
	rc.records = nil
	rc.since = time.Now().UTC()
	rc.mu.Unlock()
	fmt.Fprintln(w, "reset")
}

func firstHeaderValues(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
