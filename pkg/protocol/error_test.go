package protocol

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestRetriableError(t *testing.T) {
	var shouldRetry bool
	for kind := range kindMessages {
		switch kind {
		case Interrupted:
			shouldRetry = true
		case InvalidAddress, InvalidState, AddressInUse, PermissionDenied, ResourceExhausted,
			ConnectionRefused, HostUnreachable, Timeout, BrokenPipe, Closed, Unsupported,
			AlreadyConnected:
			shouldRetry = false
		default:
			t.Fatalf("No expected retry behavior specified for %s", kind)
		}
		err := NewError(kind, "test", nil)
		if ShouldRetry(err) != shouldRetry {
			t.Errorf("Unexpected retry behavior for error %s", kind)
		}
		if ShouldRetry(fmt.Errorf("wrapped: %w", err)) != shouldRetry {
			t.Errorf("Unexpected retry behavior for wrapped error %s", kind)
		}
	}
	if ShouldRetry(nil) {
		t.Error("nil error should not be retried")
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := fmt.Errorf("dial: %w", NewError(ConnectionRefused, "connect", syscall.ECONNREFUSED))
	if !errors.Is(err, ConnectionRefused) {
		t.Error("Expected errors.Is to match ConnectionRefused")
	}
	if errors.Is(err, Timeout) {
		t.Error("errors.Is matched the wrong kind")
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Error("Expected native error to be reachable through Unwrap")
	}
	if KindOf(err) != ConnectionRefused {
		t.Errorf("KindOf returned %s", KindOf(err))
	}
	if KindOf(Closed) != Closed {
		t.Error("KindOf should accept a bare ErrorKind")
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("KindOf should return 0 for unclassified errors")
	}
}

func TestTimeoutClassification(t *testing.T) {
	err := NewError(Timeout, "recv", syscall.EAGAIN)
	if !IsTimeout(err) {
		t.Error("Expected Timeout error to report Timeout()")
	}
	if Temporary(err) {
		t.Error("Timeout should not be Temporary")
	}
	if IsTimeout(NewError(Closed, "recv", nil)) {
		t.Error("Closed should not be a timeout")
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewError(AddressInUse, "bind", syscall.EADDRINUSE)
	expected := "bind: address already in use (" + syscall.EADDRINUSE.Error() + ")"
	if err.Error() != expected {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if NewError(Closed, "", nil).Error() != "use of closed socket" {
		t.Errorf("Unexpected message %q", NewError(Closed, "", nil).Error())
	}
}
