package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	snemo "github.com/next-exp/snemo_go/pkg"
)

type decoder interface {
	Decode(v any) error
}

// FileReader reads calibrated events one by one. JSON files hold a stream
// of event objects (one per line or concatenated), YAML files one document
// per event.
type FileReader struct {
	File     *os.File
	EvtCount int
	dec      decoder
	skip     int
	max      int
}

func NewFileReader(file *os.File, skip int, maxEvents int) *FileReader {
	f := &FileReader{File: file, EvtCount: -1, skip: skip, max: maxEvents}
	switch strings.ToLower(filepath.Ext(file.Name())) {
	case ".yaml", ".yml":
		f.dec = yaml.NewDecoder(file)
	default:
		f.dec = json.NewDecoder(file)
	}
	return f
}

// getNextEvent returns io.EOF at the end of the file or once max events have
// been read. Skipped events still count.
func (f *FileReader) getNextEvent() (*snemo.Event, error) {
	for {
		event := &snemo.Event{}
		if err := f.dec.Decode(event); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("error decoding event %d: %w", f.EvtCount+1, err)
		}
		f.EvtCount++
		if f.EvtCount >= f.max {
			if VerbosityLevel > 0 {
				logger.Info("Max events reached", "fileReader")
			}
			return nil, io.EOF
		}
		if f.EvtCount < f.skip {
			if VerbosityLevel > 0 {
				logger.Info(fmt.Sprintf("Skipping event %d with number %d", f.EvtCount, event.Number), "fileReader")
			}
			continue
		}
		if VerbosityLevel > 1 {
			logger.Info(fmt.Sprintf("Reading event %d with number %d", f.EvtCount, event.Number), "fileReader")
		}
		return event, nil
	}
}
