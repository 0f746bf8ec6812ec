// Package utils holds small concurrency helpers shared by the server and CLI.
package utils //nolint:revive // var-naming: utils is an acceptable package name for shared utilities

import "sync"

// MergeErrorChans fans several error channels into one. The result is closed
// once every input channel has been closed.
func MergeErrorChans(channels ...<-chan error) <-chan error {
	out := make(chan error)
	var wg sync.WaitGroup

	for _, ch := range channels {
		wg.Add(1)
		go func(c <-chan error) {
			defer wg.Done()
			for err := range c {
				out <- err
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
