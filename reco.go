package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	snemo "github.com/next-exp/snemo_go/pkg"
	"github.com/next-exp/snemo_go/pkg/cat"
)

func runReco(ctx context.Context, configuration snemo.Configuration) (err error) {
	setup, err := cat.SetupFromProperties(configuration.CAT)
	if err != nil {
		return err
	}
	registry := cat.NewRegistry()
	geom := cat.DemonstratorGeometry()
	drivers := make([]cat.Driver, configuration.NumWorkers)
	for i := range drivers {
		if drivers[i], err = registry.New(configuration.Algorithm, setup, geom); err != nil {
			return err
		}
	}

	file, err := os.Open(configuration.FileIn)
	if err != nil {
		return &snemo.ErrOpenFile{Filename: configuration.FileIn, Err: err}
	}
	defer file.Close()

	out, err := openOutputs(configuration)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan WorkerData, configuration.NumWorkers)
	results := make(chan WorkerResult, 1000)
	var wg sync.WaitGroup
	for w := range drivers {
		wg.Add(1)
		go worker(ctx, w+1, drivers[w], jobs, results, &wg)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	fileReader := NewFileReader(file, configuration.Skip, configuration.MaxEvents)
	readErr := make(chan error, 1)
	go func() {
		readErr <- sendEventsToWorkers(ctx, fileReader, jobs, setup.FirstEvent)
	}()

	start := time.Now()
	saved, err := processWorkerResults(results, func(r WorkerResult) error {
		return out.saveReco(r.Event, r.Solutions)
	})
	if err != nil {
		cancel()
		for range results {
		}
		return err
	}
	if err := <-readErr; err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("Events written: %d", saved), "reco")
	logger.Info(fmt.Sprintf("Total time: %d ms", time.Since(start).Milliseconds()), "reco")
	return nil
}
