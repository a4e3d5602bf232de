// Package searchindex is an optional full-text index over recording titles,
// layered alongside the C11 persistence facade rather than replacing it: the
// relational store stays the system of record, this index only accelerates
// "find the recording whose title looked like X" lookups. Grounded on
// pkg/search/manager.go and pkg/search/service.go in the teacher repo, cut
// down to the single document shape this domain needs.
package searchindex

import (
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Document is what gets indexed for one recording.
type Document struct {
	RecordingID int64     `json:"recording_id"`
	StreamerKey string    `json:"streamer_key"`
	Title       string    `json:"title"`
	StartTime   time.Time `json:"start_time"`
}

// Index wraps a bleve index scoped to Document values.
type Index struct {
	bleveIndex bleve.Index
}

// Open opens an existing index at path, or creates one with the recording
// mapping if none exists yet.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return &Index{bleveIndex: idx}, nil
	}
	if err != bleve.ErrorIndexPathDoesNotExist {
		return nil, fmt.Errorf("searchindex: open %s: %w", path, err)
	}

	idx, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("searchindex: create %s: %w", path, err)
	}
	return &Index{bleveIndex: idx}, nil
}

func buildMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	doc := bleve.NewDocumentMapping()

	streamerKeyField := bleve.NewTextFieldMapping()
	streamerKeyField.Store = true
	streamerKeyField.Index = true
	streamerKeyField.Analyzer = "keyword"
	doc.AddFieldMappingsAt("streamer_key", streamerKeyField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Store = true
	titleField.Index = true
	titleField.Analyzer = standard.Name
	doc.AddFieldMappingsAt("title", titleField)

	startField := bleve.NewDateTimeFieldMapping()
	startField.Store = true
	startField.Index = true
	doc.AddFieldMappingsAt("start_time", startField)

	indexMapping.AddDocumentMapping("recording", doc)
	indexMapping.DefaultType = "recording"
	return indexMapping
}

// docID is the bleve document id for a recording.
func docID(recordingID int64) string {
	return fmt.Sprintf("recording-%d", recordingID)
}

// Index upserts a recording's document. The DOWNLOADED handler calls it
// once per finished session; the cover is not part of the document.
func (i *Index) Index(d Document) error {
	if err := i.bleveIndex.Index(docID(d.RecordingID), d); err != nil {
		return fmt.Errorf("searchindex: index recording %d: %w", d.RecordingID, err)
	}
	return nil
}

// Delete removes a recording's document from the index.
func (i *Index) Delete(recordingID int64) error {
	if err := i.bleveIndex.Delete(docID(recordingID)); err != nil {
		return fmt.Errorf("searchindex: delete recording %d: %w", recordingID, err)
	}
	return nil
}

// Result is one title search hit.
type Result struct {
	RecordingID int64
	StreamerKey string
	Title       string
	StartTime   time.Time
	Score       float64
}

// SearchTitle runs a query-string search against recording titles, optionally
// narrowed to one streamer key, most recent first.
func (i *Index) SearchTitle(q string, streamerKey string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}

	titleQuery := bleve.NewQueryStringQuery(q)
	finalQuery := bleve.Query(titleQuery)
	if streamerKey != "" {
		keyQuery := bleve.NewTermQuery(streamerKey)
		keyQuery.SetField("streamer_key")
		finalQuery = bleve.NewConjunctionQuery(titleQuery, keyQuery)
	}

	req := bleve.NewSearchRequestOptions(finalQuery, limit, 0, false)
	req.Fields = []string{"recording_id", "streamer_key", "title", "start_time"}
	req.SortBy([]string{"-start_time"})

	searchResult, err := i.bleveIndex.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searchindex: search: %w", err)
	}

	results := make([]Result, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		r := Result{Score: hit.Score}
		if sk, ok := hit.Fields["streamer_key"].(string); ok {
			r.StreamerKey = sk
		}
		if title, ok := hit.Fields["title"].(string); ok {
			r.Title = title
		}
		if ts, ok := hit.Fields["start_time"].(string); ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				r.StartTime = t
			}
		}
		if rid, ok := hit.Fields["recording_id"].(float64); ok {
			r.RecordingID = int64(rid)
		}
		results = append(results, r)
	}
	return results, nil
}

// Close releases the underlying bleve index's file handles.
func (i *Index) Close() error {
	return i.bleveIndex.Close()
}
