package service

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"syscall"
	"time"
)

type errTmpIf interface{ Temporary() bool }
type errTmp struct{ error }

func (t errTmp) Temporary() bool    { return true }
func (t *errTmp) Unwrap() error     { return t.error }
func MakeTemporary(err error) error { return &errTmp{err} }

type errFatalIf interface{ Fatal() bool }
type errFatal struct{ error }

func (t errFatal) Fatal() bool    { return true }
func (t *errFatal) Unwrap() error { return t.error }
func MakeFatal(err error) error   { return &errFatal{err} }

// Temporary inspects the error trace and returns whether the error is transient
func Temporary(err error) bool {
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	//First override some default syscall temporary statuses
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.EBUSY, syscall.ECANCELED, syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ENOMEM, syscall.EPIPE:
			return true
		}
	}

	//first check explicitely marked error
	var tmp errTmpIf
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// Fatal inspects the error and returns whether it's a fatal error
func Fatal(err error) bool {
	var tmp errFatalIf
	if errors.As(err, &tmp) {
		return tmp.Fatal()
	}
	return false
}

// MergeErrors, appending texts
// if priorityToErr is true, priority to the fatal error then to the temporary
// else, priority to no error, then to the temporary and finally to the fatal error.
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	if len(newErrs) == 0 {
		return err
	}
	newErr := newErrs[0]

	if newErr == nil {
		if !priorityToError {
			return nil
		}
	} else if err == nil {
		err = newErr
	} else if priorityToError != Temporary(err) {
		err = fmt.Errorf("%w\n %v", err, newErr)
	} else {
		err = fmt.Errorf("%w\n %v", newErr, err)
	}
	return MergeErrors(priorityToError, err, newErrs[1:]...)
}

// Retriable calls f until it succeeds, up to maxTries times, waiting delay
// between two attempts. A non-temporary error stops the retries immediately.
func Retriable(ctx context.Context, f func() error, delay time.Duration, maxTries int) error {
	var err error
	for i := 0; i < maxTries; i++ {
		if err = f(); err == nil || !Temporary(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}

// ErrAuth is returned when the token endpoint rejects the credentials or
// answers with a malformed body
type ErrAuth struct {
	StatusCode int
	Reason     string
}

func (e ErrAuth) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (http %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// ErrJobFailed is returned when a polled job reaches the failed status
type ErrJobFailed struct {
	JobID  string
	Reason string
}

func (e ErrJobFailed) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// ErrOrderFailed is returned when a polled order reaches the failed status
type ErrOrderFailed struct {
	OrderID string
	Reason  string
}

func (e ErrOrderFailed) Error() string {
	return fmt.Sprintf("order %s failed: %s", e.OrderID, e.Reason)
}

// ErrList is returned when a page of results cannot be fetched or parsed.
// No partial listing is ever returned alongside it.
type ErrList struct {
	Page int
	Err  error
}

func (e ErrList) Error() string {
	return fmt.Sprintf("list results (page %d): %v", e.Page, e.Err)
}

func (e ErrList) Unwrap() error {
	return e.Err
}

// ErrPathConflict is returned when the download destination collides with an
// existing directory (e.g. left behind by a previous extraction)
type ErrPathConflict struct {
	Path   string
	Reason string
}

func (e ErrPathConflict) Error() string {
	return fmt.Sprintf("path conflict: %s: %s", e.Path, e.Reason)
}

// ErrIncompleteDownload is returned when the number of bytes written does not
// match the size declared by the server
type ErrIncompleteDownload struct {
	Path     string
	Declared int64
	Written  int64
}

func (e ErrIncompleteDownload) Error() string {
	return fmt.Sprintf("incomplete download: %s: %d/%d bytes", e.Path, e.Written, e.Declared)
}

// ErrArchive is returned when an archive is corrupt or cannot be extracted
type ErrArchive struct {
	Path string
	Err  error
}

func (e ErrArchive) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Path, e.Err)
}

func (e ErrArchive) Unwrap() error {
	return e.Err
}
