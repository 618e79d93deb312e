package execute

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// RunPiped runs a and b with a's stdout connected to b's stdin and b's
// stdout connected to a's stdin. Stdin fields of both requests are ignored.
// Each side has its own watchdog. When one side exits, the other gets
// peerGrace to finish before it is killed; when one side is aborted the
// other is killed at once. Both results carry a stdout path that stays
// empty, since stdout is the pipe.
func (e *Executor) RunPiped(ctx context.Context, a, b Request, peerGrace time.Duration) (*Result, *Result, error) {
	abR, abW, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	baR, baW, err := os.Pipe()
	if err != nil {
		abR.Close()
		abW.Close()
		return nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	closePipes := func() {
		abR.Close()
		abW.Close()
		baR.Close()
		baW.Close()
	}

	pa, err := e.start(a, baR, abW)
	if err != nil {
		closePipes()
		return nil, nil, err
	}
	pb, err := e.start(b, abR, baW)
	if err != nil {
		closePipes()
		pa.killByPeer()
		if ra, werr := e.wait(context.Background(), pa, 0, nil, 0); werr == nil {
			e.Dispose(ra)
		}
		return nil, nil, err
	}
	// the children hold their own copies; ours would keep EOF from arriving
	closePipes()

	var (
		wg         sync.WaitGroup
		ra, rb     *Result
		errA, errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ra, errA = e.wait(ctx, pa, a.TimeLimit, pb, peerGrace)
	}()
	go func() {
		defer wg.Done()
		rb, errB = e.wait(ctx, pb, b.TimeLimit, pa, peerGrace)
	}()
	wg.Wait()

	if errA != nil || errB != nil {
		e.Dispose(ra)
		e.Dispose(rb)
		if errA != nil {
			return nil, nil, errA
		}
		return nil, nil, errB
	}
	return ra, rb, nil
}
