// Package runner drives the batch: one slot per input target, filled
// in input order regardless of how many workers process the list.
package runner

import (
	"sync"

	"github.com/henryzz0/OSSGadget/internal/purl"
	"github.com/henryzz0/OSSGadget/internal/report"
)

// Acquirer resolves an identifier to extracted source on disk
type Acquirer interface {
	Resolve(id purl.PackageURL, downloadDir string, useCache bool) (string, error)
}

// Analyzer scans an extraction and returns findings
type Analyzer interface {
	Analyze(localPath string) ([]report.Finding, error)
}

// Config is the per-batch configuration. Built once by the CLI layer
// and never mutated after the batch starts.
type Config struct {
	DownloadDir string
	UseCache    bool
	Parallel    int
}

// Runner executes batches against its collaborators
type Runner struct {
	acquirer Acquirer
	analyzer Analyzer
}

// New creates a batch runner
func New(acquirer Acquirer, analyzer Analyzer) *Runner {
	return &Runner{
		acquirer: acquirer,
		analyzer: analyzer,
	}
}

// clampWorkers ensures parallel is between 1 and totalJobs.
func clampWorkers(parallel, totalJobs int) int {
	if parallel < 1 {
		parallel = 1
	}
	if parallel > totalJobs {
		parallel = totalJobs
	}
	return parallel
}

// Run processes every raw target and returns one result per target in
// input order. A target's failure is recorded in its own slot and
// never aborts the batch or another target's work.
func (r *Runner) Run(targets []string, cfg Config) *report.Report {
	results := make([]report.TargetResult, len(targets))

	parallel := clampWorkers(cfg.Parallel, len(targets))

	jobs := make(chan int, len(targets))
	var wg sync.WaitGroup
	for w := 0; w < parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				// Each worker owns exactly the slots it drew from the
				// channel; no two workers write the same index.
				results[i] = r.runOne(targets[i], cfg)
			}
		}()
	}

	for i := range targets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return &report.Report{Results: results}
}

// runOne processes a single target: parse, acquire, analyze
func (r *Runner) runOne(raw string, cfg Config) report.TargetResult {
	id, err := purl.Parse(raw)
	if err != nil {
		return report.TargetResult{
			Target: purl.PackageURL{Raw: raw},
			Err: &report.TargetError{
				Kind:    report.ErrInvalidIdentifier,
				Message: err.Error(),
			},
		}
	}

	localPath, err := r.acquirer.Resolve(id, cfg.DownloadDir, cfg.UseCache)
	if err != nil {
		return report.TargetResult{
			Target: id,
			Err: &report.TargetError{
				Kind:    report.ErrAcquisitionFailed,
				Message: err.Error(),
			},
		}
	}

	findings, err := r.analyzer.Analyze(localPath)
	if err != nil {
		return report.TargetResult{
			Target: id,
			Err: &report.TargetError{
				Kind:    report.ErrAnalysisFailed,
				Message: err.Error(),
			},
		}
	}

	return report.TargetResult{
		Target:   id,
		Findings: findings,
	}
}
