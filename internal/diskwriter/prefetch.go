package diskwriter

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
)

// chunkResult is one prefetched read from the upstream source.
type chunkResult struct {
	data []byte
	err  error
}

// Prefetcher reads chunkSize-sized chunks from src one chunk ahead of the
// consumer on a background goroutine, bounded by a depth-2 channel so
// memory never exceeds 2*chunkSize (spec.md §4.1's "single-slot bounded
// queue of depth 2"). It is grounded on the teacher's use of
// golang.org/x/sync/errgroup to pair a background producer with a
// context-cancellable consumer (internal/backend/sftp/sftp.go).
type Prefetcher struct {
	ch     chan chunkResult
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewPrefetcher starts reading from src in the background. chunkSize bounds
// each read; callers should match it to the writer's current adaptive
// chunk size at prefetcher-construction time (the prefetcher does not
// resize mid-stream, since resizing only matters to the writer side of the
// pipe).
func NewPrefetcher(ctx context.Context, src io.Reader, chunkSize int64) *Prefetcher {
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	p := &Prefetcher{
		ch:     make(chan chunkResult, 2),
		cancel: cancel,
		group:  group,
	}

	group.Go(func() error {
		defer close(p.ch)
		buf := make([]byte, chunkSize)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case p.ch <- chunkResult{data: chunk}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case p.ch <- chunkResult{err: err}:
					case <-ctx.Done():
					}
				}
				return nil
			}
		}
	})

	return p
}

// Next returns the next prefetched chunk, or io.EOF when the source is
// exhausted (close-on-end semantics).
func (p *Prefetcher) Next() ([]byte, error) {
	res, ok := <-p.ch
	if !ok {
		return nil, io.EOF
	}
	if res.err != nil {
		return nil, res.err
	}
	return res.data, nil
}

// Close stops the background reader early (used when a record is paused or
// cancelled).
func (p *Prefetcher) Close() error {
	p.cancel()
	return p.group.Wait()
}
