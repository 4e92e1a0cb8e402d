package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facefolio/internal/scan"
	"github.com/andresmejia3/facefolio/internal/task"
	"github.com/andresmejia3/facefolio/internal/utils"
	"github.com/schollz/progressbar/v3"
)

// runWithProgress runs job in the background and mirrors its progress on a bar.
func runWithProgress[T any](ctx context.Context, description string, job func(ctx context.Context, report task.Report) (T, error)) (T, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)

	t := task.Start(ctx, job)
	for p := range t.Progress() {
		if bar.GetMax() != p.Total {
			bar.ChangeMax(p.Total)
		}
		bar.Describe(fmt.Sprintf("%s %s", description, p.Item))
		_ = bar.Set(p.Current)
	}
	_ = bar.Finish()
	return t.Wait()
}

// reportFailure prints the error box, including engine logs when a Python worker died.
func reportFailure(msg string, err error) {
	var ee *scan.EngineError
	if errors.As(err, &ee) && ee.Cmd != nil {
		utils.ShowError(msg, err, ee.Cmd)
		return
	}
	utils.ShowError(msg, err, nil)
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
