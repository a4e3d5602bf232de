// Package handlers is C10: wires the C7 recording session and C8 upload
// session onto the event bus's four driven kinds (§4.10). Grounded on the
// eventbus.Handler signature and the "handler yields follow-up events"
// DESIGN NOTE; the per-kind bodies translate §4.10's prose directly, one
// handler per bullet.
package handlers

import (
	"context"
	"fmt"

	"github.com/streamkeep/streamkeep/internal/config"
	"github.com/streamkeep/streamkeep/internal/eventbus"
	"github.com/streamkeep/streamkeep/internal/events"
	"github.com/streamkeep/streamkeep/internal/logging"
	"github.com/streamkeep/streamkeep/internal/persistence/searchindex"
	"github.com/streamkeep/streamkeep/internal/recording"
	"github.com/streamkeep/streamkeep/internal/upload"
	"github.com/streamkeep/streamkeep/internal/urlstate"
)

// Deps bundles everything a handler needs to reach into C7/C8/C11 and the
// live config. streamerFor resolves a streamer key to its current *Streamer
// (a pointer into the live, possibly hot-reloaded config.Config).
type Deps struct {
	Log           *logging.Logger
	States        *urlstate.Table
	RecordingSess *recording.Session
	UploadSess    *upload.Session
	StreamerFor   func(streamerKey string) (*config.Streamer, bool)

	// Index is the C11 title/streamer search index. Nil disables indexing
	// (e.g. in tests that don't construct one).
	Index *searchindex.Index
}

// Register wires all four handlers onto bus per §4.10's pool assignments.
func Register(bus *eventbus.Bus, deps Deps) {
	log := deps.Log.WithComponent("handlers")

	bus.Register(events.PreDownload, events.Pool1, func(e events.Event) ([]events.Event, error) {
		return handlePreDownload(deps, log, e)
	})
	bus.Register(events.Download, events.Pool1, func(e events.Event) ([]events.Event, error) {
		return handleDownload(deps, log, e)
	})
	bus.Register(events.Downloaded, events.Pool1, func(e events.Event) ([]events.Event, error) {
		return handleDownloaded(deps, log, e)
	})
	bus.Register(events.Upload, events.Pool2, func(e events.Event) ([]events.Event, error) {
		return handleUpload(deps, log, e)
	})
}

// preDownloadPayload is the JSON shape handed to the preprocessor hook
// chain (§4.10 "invoke streamer's preprocessor hook chain with a JSON
// payload {name,url,start_time}").
type preDownloadPayload struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	StartTime string    `json:"start_time"`
}

func handlePreDownload(deps Deps, log *logging.Logger, e events.Event) ([]events.Event, error) {
	args, ok := e.Args.(events.PreDownloadArgs)
	if !ok {
		return nil, fmt.Errorf("handlers: PRE_DOWNLOAD got unexpected payload %T", e.Args)
	}

	if deps.States.Get(args.URL) == urlstate.Downloading {
		return nil, nil
	}

	streamer, ok := deps.StreamerFor(args.StreamerKey)
	if !ok {
		return nil, fmt.Errorf("handlers: PRE_DOWNLOAD for unknown streamer %q", args.StreamerKey)
	}

	payload := preDownloadPayload{Name: args.StreamerKey, URL: args.URL, StartTime: args.StartTime.Format("2006-01-02T15:04:05Z07:00")}
	if err := upload.RunJSONHooks(context.Background(), log, streamer.Preprocessor, payload); err != nil {
		log.Warnf("preprocessor hook chain for %s: %v", args.StreamerKey, err)
	}

	return []events.Event{{Kind: events.Download, Args: events.DownloadArgs{StreamerKey: args.StreamerKey, URL: args.URL}}}, nil
}

func handleDownload(deps Deps, log *logging.Logger, e events.Event) ([]events.Event, error) {
	args, ok := e.Args.(events.DownloadArgs)
	if !ok {
		return nil, fmt.Errorf("handlers: DOWNLOAD got unexpected payload %T", e.Args)
	}

	streamer, ok := deps.StreamerFor(args.StreamerKey)
	if !ok {
		return nil, fmt.Errorf("handlers: DOWNLOAD for unknown streamer %q", args.StreamerKey)
	}

	deps.States.Set(args.URL, urlstate.Downloading)
	defer deps.States.Set(args.URL, urlstate.Idle)

	info, err := deps.RecordingSess.Run(context.Background(), args.StreamerKey, streamer, args.URL)
	if err != nil {
		return nil, fmt.Errorf("handlers: recording session for %s: %w", args.StreamerKey, err)
	}

	return []events.Event{{Kind: events.Downloaded, Args: info}}, nil
}

// downloadedPayload is handed to the downloaded_processor hook chain
// (§4.10 "{name,url,room_title,start_time,end_time,file_list}").
type downloadedPayload struct {
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	RoomTitle string   `json:"room_title"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	FileList  []string `json:"file_list"`
}

func handleDownloaded(deps Deps, log *logging.Logger, e events.Event) ([]events.Event, error) {
	info, ok := e.Args.(events.DownloadedArgs)
	if !ok {
		return nil, fmt.Errorf("handlers: DOWNLOADED got unexpected payload %T", e.Args)
	}

	streamer, ok := deps.StreamerFor(info.StreamerKey)
	if !ok {
		return nil, fmt.Errorf("handlers: DOWNLOADED for unknown streamer %q", info.StreamerKey)
	}

	payload := downloadedPayload{
		Name:      info.StreamerKey,
		URL:       info.URL,
		RoomTitle: info.Title,
		StartTime: info.StartTime.Format("2006-01-02T15:04:05Z07:00"),
		EndTime:   info.EndTime.Format("2006-01-02T15:04:05Z07:00"),
		FileList:  info.Files,
	}
	// §9 DESIGN NOTES (b): on downloaded_processor failure the source
	// silently continues; the error is logged, never surfaced upward.
	if err := upload.RunJSONHooks(context.Background(), log, streamer.DownloadedProcessor, payload); err != nil {
		log.Warnf("downloaded_processor hook chain for %s: %v", info.StreamerKey, err)
	}

	if deps.Index != nil {
		doc := searchindex.Document{
			RecordingID: info.RecordingID,
			StreamerKey: info.StreamerKey,
			Title:       info.Title,
			StartTime:   info.StartTime,
		}
		if err := deps.Index.Index(doc); err != nil {
			log.Warnf("index recording %d: %v", info.RecordingID, err)
		}
	}

	return []events.Event{{Kind: events.Upload, Args: info}}, nil
}

func handleUpload(deps Deps, log *logging.Logger, e events.Event) ([]events.Event, error) {
	info, ok := e.Args.(events.UploadArgs)
	if !ok {
		return nil, fmt.Errorf("handlers: UPLOAD got unexpected payload %T", e.Args)
	}

	streamer, ok := deps.StreamerFor(info.StreamerKey)
	if !ok {
		return nil, fmt.Errorf("handlers: UPLOAD for unknown streamer %q", info.StreamerKey)
	}

	deps.UploadSess.Run(context.Background(), info, streamer)
	return nil, nil
}
