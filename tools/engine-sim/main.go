// engine-sim is a stand-in delivery engine for local development. It
// accepts the schedule-reminder and send-notification webhooks, logs
// every payload, and (when scheduling) fires the trigger callback after
// the requested delay so the full lifecycle can be exercised without a
// real workflow engine.
//
// Run it, then point remindd at it:
//
//	ENGINE_WEBHOOK_BASE=http://localhost:9095/webhook
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type schedulePayload struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Email        string `json:"email"`
	ReminderTime string `json:"reminder_time"`
	WebhookURL   string `json:"webhook_url"`
}

type immediatePayload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Email string `json:"email"`
	Type  string `json:"type"`
}

var (
	mu        sync.Mutex
	scheduled int64
	sent      int64
	fireNow   bool
)

func main() {
	addr := ":9095"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}
	// FIRE_IMMEDIATELY=true triggers the callback right away instead of
	// waiting for the reminder's due time. Handy for exercising the
	// trigger path without waiting.
	fireNow = os.Getenv("FIRE_IMMEDIATELY") == "true"

	http.HandleFunc("/webhook/schedule-reminder", scheduleHandler)
	http.HandleFunc("/webhook/send-notification", sendHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	log.Printf("engine-sim listening on %s (fire_immediately=%v)", addr, fireNow)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func scheduleHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	var p schedulePayload
	if err := json.Unmarshal(body, &p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":"bad payload: %v"}`, err)
		return
	}

	mu.Lock()
	scheduled++
	n := scheduled
	mu.Unlock()

	log.Printf("schedule #%d: reminder=%s due=%s callback=%s", n, p.ID, p.ReminderTime, p.WebhookURL)

	if p.WebhookURL != "" {
		delay := time.Duration(0)
		if !fireNow {
			if due, err := time.Parse(time.RFC3339, p.ReminderTime); err == nil {
				delay = time.Until(due)
				if delay < 0 {
					delay = 0
				}
			}
		}
		go fireCallback(p.ID, p.WebhookURL, delay)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"scheduled":true,"id":%q}`, p.ID)
}

func sendHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	var p immediatePayload
	if err := json.Unmarshal(body, &p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":"bad payload: %v"}`, err)
		return
	}

	mu.Lock()
	sent++
	n := sent
	mu.Unlock()

	log.Printf("send #%d: reminder=%s email=%s type=%s", n, p.ID, p.Email, p.Type)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"sent":true,"id":%q}`, p.ID)
}

// fireCallback invokes the trigger callback after the due delay, the way
// the real engine confirms a fired reminder.
func fireCallback(id, url string, delay time.Duration) {
	if delay > 0 {
		log.Printf("callback for reminder=%s in %s", id, delay.Round(time.Second))
		time.Sleep(delay)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(nil))
	if err != nil {
		log.Printf("callback for reminder=%s failed: %v", id, err)
		return
	}
	resp.Body.Close()
	log.Printf("callback for reminder=%s -> %d", id, resp.StatusCode)
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	defer mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"scheduled":%d,"sent":%d}`+"\n", scheduled, sent)
}
