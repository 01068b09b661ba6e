// pkg/redact/redact.go
//
// Streaming replacement of known secret literals in a byte stream. The
// transform tolerates arbitrary chunking: a secret split across Write
// calls is still replaced, because up to maxLen-1 trailing bytes are held
// back until the next chunk or Close.

package redact

import (
	"bytes"
	"io"
	"sort"

	cerr "github.com/cockroachdb/errors"
)

// Placeholder is the literal every matched secret is replaced with.
const Placeholder = "[REDACTED]"

// Redactor is an io.WriteCloser that copies its input to dst with every
// occurrence of any configured secret replaced by Placeholder. Close
// flushes the held-back tail; output is incomplete until then. A Redactor
// serves exactly one stream and is not safe for concurrent writers.
type Redactor struct {
	dst     io.Writer
	secrets [][]byte
	maxLen  int
	pending []byte
	closed  bool
}

// New builds a redactor over dst. Empty strings in secrets are dropped;
// with no secrets left the transform is the identity. Secrets are matched
// as literal bytes; regex metacharacters have no meaning here.
func New(dst io.Writer, secrets []string) *Redactor {
	r := &Redactor{dst: dst}
	for _, s := range secrets {
		if s == "" {
			continue
		}
		r.secrets = append(r.secrets, []byte(s))
		if len(s) > r.maxLen {
			r.maxLen = len(s)
		}
	}
	// longer secrets first so the scan prefers the longest match
	sort.SliceStable(r.secrets, func(i, j int) bool {
		return len(r.secrets[i]) > len(r.secrets[j])
	})
	return r
}

// Write feeds a chunk of input. Zero-length chunks are fine.
func (r *Redactor) Write(p []byte) (int, error) {
	if r.closed {
		return 0, cerr.New("write on closed redactor")
	}
	if len(r.secrets) == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		n, err := r.dst.Write(p)
		if err != nil {
			return n, err
		}
		return len(p), nil
	}

	r.pending = append(r.pending, p...)

	// Hold back maxLen-1 bytes: anything before that point either matches
	// a whole secret or cannot be the start of one.
	holdback := r.maxLen - 1
	limit := len(r.pending) - holdback
	if limit <= 0 {
		return len(p), nil
	}
	if err := r.emit(limit); err != nil {
		return len(p), err
	}
	return len(p), nil
}

// Close replaces and flushes the remaining tail. The underlying writer is
// not closed.
func (r *Redactor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if len(r.pending) == 0 {
		return nil
	}
	err := r.emit(len(r.pending))
	r.pending = nil
	return err
}

// emit scans pending from the front and writes out everything whose match
// decision is final. A match starting before limit is emitted (replaced)
// in full even when it extends past limit.
func (r *Redactor) emit(limit int) error {
	var out bytes.Buffer
	i := 0
	for i < limit {
		if n := r.matchAt(i); n > 0 {
			out.WriteString(Placeholder)
			i += n
			continue
		}
		out.WriteByte(r.pending[i])
		i++
	}
	r.pending = r.pending[i:]
	if out.Len() == 0 {
		return nil
	}
	_, err := r.dst.Write(out.Bytes())
	return err
}

// matchAt returns the length of the longest secret matching pending at
// offset i, or 0. Secrets are pre-sorted longest first, so the first hit
// wins; equal-length overlaps resolve to the earlier start because the
// scan is left to right.
func (r *Redactor) matchAt(i int) int {
	rest := r.pending[i:]
	for _, s := range r.secrets {
		if len(s) <= len(rest) && bytes.Equal(rest[:len(s)], s) {
			return len(s)
		}
	}
	return 0
}

// String runs the transform over a complete input and returns the result.
// Convenience for non-streaming callers.
func String(input string, secrets []string) string {
	var buf bytes.Buffer
	r := New(&buf, secrets)
	_, _ = r.Write([]byte(input))
	_ = r.Close()
	return buf.String()
}
