package errors

import (
	"context"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDIMSEErrorStatusChecks(t *testing.T) {
	tests := []struct {
		name         string
		status       uint16
		wantSuccess  bool
		wantWarning  bool
		wantResource bool
	}{
		{name: "Success", status: 0x0000, wantSuccess: true},
		{name: "Pending", status: 0xFF00},
		{name: "Warning B000", status: 0xB000, wantWarning: true},
		{name: "Warning B007", status: 0xB007, wantWarning: true},
		{name: "Failure C000", status: 0xC000},
		{name: "Failure A900", status: 0xA900},
		{name: "Out of resources A700", status: 0xA700, wantResource: true},
		{name: "Out of resources A7FF", status: 0xA7FF, wantResource: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDIMSEError("C-STORE", tt.status, "test")
			assert.Equal(t, tt.wantSuccess, err.IsSuccess())
			assert.Equal(t, tt.wantWarning, err.IsWarning())
			assert.Equal(t, tt.wantResource, err.IsOutOfResources())
		})
	}
}

func TestAssociationError(t *testing.T) {
	permanent := NewAssociationError(0x01, RejectSourceServiceUser, RejectReasonCalledAETitleNotRecognized, "rejected")
	assert.True(t, permanent.Permanent)
	assert.Contains(t, permanent.Error(), "permanent")
	assert.Contains(t, permanent.Error(), "called-ae-title-not-recognized")
	assert.Contains(t, permanent.Error(), "service-user")

	transient := NewAssociationError(0x02, RejectSourceServiceProvider, RejectReasonNoReasonGiven, "busy")
	assert.False(t, transient.Permanent)
	assert.Contains(t, transient.Error(), "transient")
}

func TestRejectStrings(t *testing.T) {
	assert.Equal(t, "no-reason-given", RejectReasonNoReasonGiven.String())
	assert.Equal(t, "application-context-not-supported", RejectReasonApplicationContextNotSupported.String())
	assert.Equal(t, "calling-ae-title-not-recognized", RejectReasonCallingAETitleNotRecognized.String())
	assert.Equal(t, "unknown", AssociationRejectReason(0x55).String())

	assert.Equal(t, "service-user", RejectSourceServiceUser.String())
	assert.Equal(t, "service-provider", RejectSourceServiceProvider.String())
	assert.Equal(t, "unknown", RejectSourceUnknown.String())
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("association", "30s")
	assert.Equal(t, "timeout: association exceeded 30s", err.Error())
	assert.True(t, err.Timeout())
}

func TestNetworkErrorUnwrap(t *testing.T) {
	base := fmt.Errorf("connection refused")
	err := NewNetworkError("dial", base)
	assert.Equal(t, base, err.Unwrap())
	assert.Contains(t, err.Error(), "dial")
}

func TestAbortError(t *testing.T) {
	assert.Contains(t, NewAbortError(0x00, 0x00).Error(), "service-user")
	assert.Contains(t, NewAbortError(0x02, 0x01).Error(), "service-provider")
	assert.Contains(t, NewAbortError(0x01, 0x00).Error(), "unknown")
}

func TestStatusErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	err := NewStatusError("store", 500, string(long))
	assert.Len(t, err.Body, 512)
	assert.Contains(t, NewStatusError("find", 404, "").Error(), "HTTP 404")
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := Mark(Wrap(fmt.Errorf("no signature"), "check integrity"), ErrCorruptedSource)
	err = Wrap(err, "process file")
	assert.True(t, Is(err, ErrCorruptedSource))
	assert.False(t, Is(err, ErrTransient))
}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      Class
		retryable bool
	}{
		{name: "nil", err: nil, want: ClassNone},
		{name: "canceled", err: context.Canceled, want: ClassCanceled},
		{name: "deadline", err: Wrap(context.DeadlineExceeded, "store"), want: ClassTimeout, retryable: true},
		{name: "http 500", err: NewStatusError("store", 500, ""), want: ClassServer, retryable: true},
		{name: "http 503 wrapped", err: Wrap(NewStatusError("store", 503, ""), "upload"), want: ClassServer, retryable: true},
		{name: "http 429", err: NewStatusError("store", 429, ""), want: ClassThrottled, retryable: true},
		{name: "http 408", err: NewStatusError("store", 408, ""), want: ClassTimeout, retryable: true},
		{name: "http 401", err: NewStatusError("store", 401, ""), want: ClassAuth},
		{name: "http 403", err: NewStatusError("store", 403, ""), want: ClassAuth},
		{name: "http 400", err: NewStatusError("store", 400, "bad dicom"), want: ClassRejected},
		{name: "dimse out of resources", err: NewDIMSEError("C-STORE", 0xA700, ""), want: ClassServer, retryable: true},
		{name: "dimse failure", err: NewDIMSEError("C-STORE", 0xC000, ""), want: ClassRejected},
		{name: "assoc permanent", err: NewAssociationError(1, RejectSourceServiceUser, RejectReasonCalledAETitleNotRecognized, ""), want: ClassRejected},
		{name: "assoc transient", err: NewAssociationError(2, RejectSourceServiceProvider, RejectReasonNoReasonGiven, ""), want: ClassConnection, retryable: true},
		{name: "abort", err: NewAbortError(2, 0), want: ClassConnection, retryable: true},
		{name: "dimse timeout", err: NewTimeoutError("read", "5s"), want: ClassTimeout, retryable: true},
		{name: "net timeout", err: Wrap(timeoutNetErr{}, "post"), want: ClassTimeout, retryable: true},
		{name: "refused", err: Wrap(syscall.ECONNREFUSED, "dial"), want: ClassConnection, retryable: true},
		{name: "reset", err: syscall.ECONNRESET, want: ClassConnection, retryable: true},
		{name: "eof", err: io.ErrUnexpectedEOF, want: ClassConnection, retryable: true},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "pacs"}, want: ClassConnection, retryable: true},
		{name: "marked transient", err: Mark(New("flaky"), ErrTransient), want: ClassConnection, retryable: true},
		{name: "invalid pdu", err: Wrap(ErrInvalidPDU, "read"), want: ClassProtocol},
		{name: "plain", err: New("boom"), want: ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.Equal(t, tt.want, got)
			assert.Equal(t, tt.retryable, got.Retryable())
		})
	}
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "none", ClassNone.String())
	assert.Equal(t, "server", ClassServer.String())
}
