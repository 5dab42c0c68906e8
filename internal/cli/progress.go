package cli

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

var stageDescriptions = map[string]string{
	models.StageRepositories: "Matching repositories",
	models.StageBranches:     "Comparing branches",
	models.StageCommits:      "Comparing commits",
	models.StageTags:         "Comparing tags",
	models.StageWorkflows:    "Checking workflows",
}

// progressObserver draws one progress bar per running stage. Stages may run
// concurrently, so bars are tracked per stage under a lock.
type progressObserver struct {
	out io.Writer

	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
	done map[string]int
}

// newProgressObserver draws on out. Bars are suppressed when out is a file
// that is not a terminal, so redirected output stays readable.
func newProgressObserver(out io.Writer) *progressObserver {
	if f, ok := out.(*os.File); ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		out = io.Discard
	}
	return &progressObserver{
		out:  out,
		bars: make(map[string]*progressbar.ProgressBar),
		done: make(map[string]int),
	}
}

func (p *progressObserver) StageStarted(stage string, units int) {
	description, ok := stageDescriptions[stage]
	if !ok {
		description = stage
	}
	bar := progressbar.NewOptions(
		units,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(p.out),
	)

	p.mu.Lock()
	p.bars[stage] = bar
	p.done[stage] = 0
	p.mu.Unlock()
}

func (p *progressObserver) UnitFinished(stage, _ string, _ error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bar, ok := p.bars[stage]; ok {
		_ = bar.Add(1)
		p.done[stage]++
	}
}

func (p *progressObserver) StageFinished(summary models.StageSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bar, ok := p.bars[summary.Stage]; ok {
		_ = bar.Finish()
		_, _ = io.WriteString(p.out, "\n")
		delete(p.bars, summary.Stage)
	}
}

// completed returns how many units of stage have been reported.
func (p *progressObserver) completed(stage string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done[stage]
}
