package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	snemo "github.com/next-exp/snemo_go/pkg"
	"github.com/next-exp/snemo_go/pkg/cat"
)

type WorkerData struct {
	Index int
	Event *snemo.Event
}

type WorkerResult struct {
	Index     int
	Event     *snemo.Event
	Solutions cat.Solutions
	Report    cat.Report
	Err       error
}

// worker owns its driver, so no engine state is shared between workers.
func worker(ctx context.Context, id int, driver cat.Driver, jobs <-chan WorkerData, results chan<- WorkerResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range jobs {
		results <- processEvent(ctx, id, driver, job)
	}
}

func processEvent(ctx context.Context, id int, driver cat.Driver, job WorkerData) (res WorkerResult) {
	res = WorkerResult{Index: job.Index, Event: job.Event}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("worker %d recovered from panic on event %d: %v", id, job.Event.Number, r)
		}
	}()
	if VerbosityLevel > 1 {
		logger.Info(fmt.Sprintf("Worker %d processing event %d", id, job.Event.Number), "worker")
	}
	res.Report, res.Err = driver.Process(ctx, job.Event.TrackerHits, job.Event.CaloHits, &res.Solutions)
	return res
}

func sendEventsToWorkers(ctx context.Context, fileReader *FileReader, jobs chan<- WorkerData, firstEvent int) error {
	defer close(jobs)
	index := 0
	for {
		event, err := fileReader.getNextEvent()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if event.Number < firstEvent {
			continue
		}
		select {
		case jobs <- WorkerData{Index: index, Event: event}:
			index++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// processWorkerResults hands the results to save in reading order and
// returns the number of events saved. It stops at the first fatal error.
func processWorkerResults(results <-chan WorkerResult, save func(WorkerResult) error) (int, error) {
	pending := make(map[int]WorkerResult)
	next := 0
	saved := 0
	for res := range results {
		pending[res.Index] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if r.Err != nil {
				if fatal(r.Err) {
					return saved, r.Err
				}
				logger.Error(fmt.Errorf("event %d: %w", r.Event.Number, r.Err).Error())
				if DiscardErrors {
					logger.Error(fmt.Sprintf("discarding event %d", r.Event.Number))
					continue
				}
			}
			if r.Report.Incomplete {
				logger.Info(fmt.Sprintf("Event %d: clustering stopped by the time budget", r.Event.Number), "reco")
			}
			if VerbosityLevel > 0 && r.Report.CaloFallbacks > 0 {
				logger.Info(fmt.Sprintf("Event %d: %d calorimeter hits without a block locator", r.Event.Number, r.Report.CaloFallbacks), "reco")
			}
			if err := save(r); err != nil {
				return saved, err
			}
			saved++
		}
	}
	return saved, nil
}
