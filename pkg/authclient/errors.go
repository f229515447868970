package authclient

import (
	"net/url"

	"github.com/pkg/errors"
)

// Error kinds returned by the client. Callers match them with errors.Is; the
// message of the returned error carries the details.
var (
	ErrConfig    = errors.New("invalid auth client configuration")
	ErrTransport = errors.New("authentication service unreachable")
	ErrDecode    = errors.New("invalid authentication service response")
)

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string        { return e.err.Error() }
func (e *kindError) Unwrap() error        { return e.err }
func (e *kindError) Is(target error) bool { return target == e.kind }

func wrapf(kind, err error, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: errors.Wrapf(redact(err), format, args...)}
}

func errorf(kind error, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: errors.Errorf(format, args...)}
}

// redact drops the request URL from transport errors. The session URL carries
// the shared secret in its query string.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return errors.Errorf("%s: %v", uerr.Op, uerr.Err)
	}
	return err
}
