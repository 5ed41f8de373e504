package cli

import (
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
)

// progressFunc shows msg until the returned stop is called
type progressFunc func(msg string) (stop func())

func spinnerProgress(w io.Writer) progressFunc {
	return func(msg string) func() {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		s.Suffix = " " + msg
		s.Start()

		var once sync.Once
		return func() {
			once.Do(s.Stop)
		}
	}
}

func noProgress(string) func() {
	return func() {}
}
