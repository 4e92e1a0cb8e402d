// Package scan runs face detection over a list of photos with a pool of engines
// and hands the results back in input order.
package scan

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/andresmejia3/facefolio/internal/embedder"
	"github.com/andresmejia3/facefolio/internal/types"
	"github.com/andresmejia3/facefolio/internal/utils"
)

// Result is the detection outcome for one photo.
// Err is set only for failures confined to that photo (unreadable, undecodable).
type Result struct {
	Index int
	Path  string
	Faces []types.FaceResult
	Err   error
}

// EngineError is a fatal engine failure. Cmd is set for subprocess engines so
// the caller can show their captured logs.
type EngineError struct {
	Engine int
	Err    error
	Cmd    *utils.SafeCommand
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %d: %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// commander is implemented by engines backed by a SafeCommand.
type commander interface {
	Command() *utils.SafeCommand
}

// Pool detects faces with Engines engines in parallel.
type Pool struct {
	Factory embedder.Factory
	Engines int
}

// Run processes paths and calls fn once per photo, strictly in path order, on
// the calling goroutine. Cancelling ctx stops scheduling; photos already
// delivered stay delivered. The first fatal error (engine start, crash, timeout
// or an error from fn) stops the run and is returned.
func (p *Pool) Run(ctx context.Context, paths []string, fn func(Result) error) error {
	if len(paths) == 0 {
		return ctx.Err()
	}
	n := p.Engines
	if n < 1 {
		n = 1
	}
	if n > len(paths) {
		n = len(paths)
	}

	// Start every engine up front so a broken setup fails before any work.
	engines := make([]embedder.Engine, 0, n)
	closeAll := func() {
		for _, e := range engines {
			e.Close()
		}
	}
	for i := 0; i < n; i++ {
		e, err := p.Factory(ctx, i)
		if err != nil {
			closeAll()
			return fmt.Errorf("engine startup failed: %w", err)
		}
		engines = append(engines, e)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatalOnce sync.Once
		fatal     error
	)
	fail := func(err error) {
		fatalOnce.Do(func() {
			fatal = err
			cancel()
		})
	}

	taskChan := make(chan types.ImageTask, n)
	resultsChan := make(chan Result, n*2)
	var wg sync.WaitGroup

	// Spawn the Engine Pool
	for i, e := range engines {
		wg.Add(1)
		go func(id int, e embedder.Engine) {
			defer wg.Done()
			for task := range taskChan {
				if ctx.Err() != nil {
					continue // drain
				}
				res, err := detect(ctx, e, task)
				if err != nil {
					if ctx.Err() != nil {
						continue // interrupted, not crashed
					}
					ee := &EngineError{Engine: id, Err: err}
					if c, ok := e.(commander); ok {
						ee.Cmd = c.Command()
					}
					fail(ee)
					continue
				}
				resultsChan <- res
			}
		}(i, e)
	}

	// Feed tasks until done or cancelled.
	go func() {
		defer close(taskChan)
		for i, path := range paths {
			select {
			case taskChan <- types.ImageTask{Index: i, Path: path}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Buffer for re-ordering (Engine 2 might finish before Engine 1)
	buffer := make(map[int]Result)
	nextIndex := 0
	for res := range resultsChan {
		if ctx.Err() != nil {
			continue // drain so engines never block
		}
		buffer[res.Index] = res
		for {
			r, ok := buffer[nextIndex]
			if !ok {
				break
			}
			delete(buffer, nextIndex)
			nextIndex++
			if err := fn(r); err != nil {
				fail(err)
				break
			}
		}
	}

	closeAll()

	if fatal != nil {
		return fatal
	}
	// Parent cancellation (e.g. Ctrl+C)
	return ctx.Err()
}

// detect returns a non-nil error only for fatal failures.
func detect(ctx context.Context, e embedder.Engine, task types.ImageTask) (Result, error) {
	res := Result{Index: task.Index, Path: task.Path}

	data, err := os.ReadFile(task.Path)
	if err != nil {
		res.Err = fmt.Errorf("read failed: %w", err)
		return res, nil
	}

	faces, err := e.DetectFaces(ctx, data)
	if err != nil {
		if embedder.IsItemError(err) {
			res.Err = err
			return res, nil
		}
		return res, err
	}
	res.Faces = faces
	return res, nil
}
