package core

import (
	"errors"
	"os"
	"sync/atomic"
)

// Closers closes every function in order and joins their errors.
type Closers []func() error

func (c *Closers) Add(fn func() error) {
	*c = append(*c, fn)
}

func (c Closers) Close() error {
	var multiErr error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			multiErr = errors.Join(multiErr, err)
		}
	}
	return multiErr
}

// https://stackoverflow.com/a/12518877
func FileExists(filePath string) (bool, error) {
	if _, err := os.Stat(filePath); err == nil {
		return true, nil
	} else if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else {
		return false, err
	}
}

func Optional[T comparable](value T, defaulT T) T {
	var zero T
	if value == zero {
		return defaulT
	}
	return value
}

// Flag is the process-wide running flag. It starts raised and can only be lowered.
type Flag struct {
	stopped atomic.Bool
}

func NewFlag() *Flag {
	return &Flag{}
}

func (f *Flag) Running() bool {
	return !f.stopped.Load()
}

func (f *Flag) Stop() {
	f.stopped.Store(true)
}

func Pointer[T any](v T) *T {
	return &v
}
