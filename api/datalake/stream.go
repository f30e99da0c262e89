package datalake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"ParkRevLake/api/constants"
)

// StreamETLRun runs the processor for a file and streams progress as
// server-sent events. The run itself executes on a detached context: a
// client that disconnects mid-run stops receiving events, but the run
// finishes and the run log settles either way.
func StreamETLRun(pool *pgxpool.Pool, cache *LookupCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			http.Error(w, constants.ErrInvalidFileID, http.StatusBadRequest)
			return
		}
		triggeredBy := r.Header.Get(constants.HeaderUserID)

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set(constants.ContentTypeText, "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set(constants.HeaderAccessControlAllowOrigin, "*")
		w.Header().Set(constants.HeaderAccessControlAllowHeaders, "Cache-Control")

		events := make(chan RunEvent, 16)
		result := make(chan error, 1)

		processor := NewProcessor(pool, cache)
		go func() {
			// Detached from the request context so the run survives a
			// dropped connection.
			_, err := processor.RunWithEvents(context.Background(), fileID, triggeredBy, events)
			result <- err
		}()

		writeEvent(w, flusher, RunEvent{Stage: "connected", Message: "stream established", Time: time.Now()})

		ping := time.NewTicker(15 * time.Second)
		defer ping.Stop()

		clientGone := r.Context().Done()
		for {
			select {
			case ev, open := <-events:
				if !open {
					err := <-result
					if err != nil {
						writeEvent(w, flusher, RunEvent{Stage: "error", Message: runErrorMessage(err), Time: time.Now()})
					}
					return
				}
				writeEvent(w, flusher, ev)
			case <-ping.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case <-clientGone:
				// Drain so the worker never blocks on a dead client
				go drainEvents(events)
				log.Printf("[Datalake] SSE client left, run for file %s continues", fileID)
				return
			}
		}
	}
}

// drainEvents consumes events until the producer closes the channel, so a
// run can keep emitting after its client is gone.
func drainEvents(events <-chan RunEvent) {
	for range events {
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev RunEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func runErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrRunInProgress):
		return constants.ErrRunInProgress
	case errors.Is(err, ErrFileNotStaged):
		return constants.ErrFileNotStaged
	case errors.Is(err, ErrFileNotFound):
		return constants.ErrFileNotFound
	case errors.Is(err, ErrUnknownSource):
		return constants.ErrUnknownSource
	}
	return friendlyPgMessage(err)
}
