package resilience

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/aravind-gm/oranew/common/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"connection exception class", &pgconn.PgError{Code: "08006"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"connection refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, true},
		{"connection reset", fmt.Errorf("query: %w", syscall.ECONNRESET), true},
		{"bad conn", driver.ErrBadConn, true},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
		{"plain error", errors.New("record not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(fmt.Errorf("repo: %w", tt.err))
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(got))
			assert.ErrorIs(t, got, tt.err)
			if tt.retryable {
				assert.Equal(t, apperrors.KindTransient, apperrors.KindOf(got))
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, Classify(nil))
}

func TestClassify_AlreadyTagged(t *testing.T) {
	tagged := apperrors.Transient("x", nil)
	assert.Same(t, tagged, Classify(tagged))
}
